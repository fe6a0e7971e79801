// Package main implements a CLI for inspecting and driving a buffer
// directory directly, without going through the HTTP API.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/dsjohal14/ledgerbuf/internal/diskbuf"
	"github.com/spf13/cobra"
)

var dataDir string

func main() {
	root := &cobra.Command{Use: "ledgerbuf", Short: "inspect and drive a ledgerbuf buffer directory"}
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "./data/buffer", "buffer directory")

	root.AddCommand(writeCmd())
	root.AddCommand(readCmd())
	root.AddCommand(inspectCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// writeCmd appends one line per stdin line as a single-event record.
func writeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write",
		Short: "append each line of stdin as a record",
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := diskbuf.Open(diskbuf.DefaultOptions(dataDir))
			if err != nil {
				return fmt.Errorf("failed to open buffer: %w", err)
			}
			defer func() { _ = buf.Close() }()

			scanner := bufio.NewScanner(cmd.InOrStdin())
			scanner.Buffer(make([]byte, 64*1024), 1024*1024)
			count := 0
			for scanner.Scan() {
				line := scanner.Bytes()
				if len(line) == 0 {
					continue
				}
				id, err := buf.Writer().Write(cmd.Context(), line, 1)
				if err != nil {
					return fmt.Errorf("failed to append record: %w", err)
				}
				count++
				fmt.Fprintf(cmd.OutOrStdout(), "wrote record %d\n", id)
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d records written\n", count)
			return nil
		},
	}
}

// readCmd drains the buffer and prints each record's payload, one per
// line, acknowledging every record it prints.
func readCmd() *cobra.Command {
	var follow bool
	var ackFailed bool

	cmd := &cobra.Command{
		Use:   "read",
		Short: "drain records from the buffer, printing each payload",
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := diskbuf.Open(diskbuf.DefaultOptions(dataDir))
			if err != nil {
				return fmt.Errorf("failed to open buffer: %w", err)
			}
			defer func() { _ = buf.Close() }()

			ctx := cmd.Context()
			for {
				var (
					rec *diskbuf.Record
					ack *diskbuf.Ack
				)
				if follow {
					rec, ack, err = buf.Reader().Read(ctx)
				} else {
					rec, ack, err = buf.Reader().TryRead()
				}
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("read failed: %w", err)
				}
				if rec == nil {
					return nil
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", rec.FirstRecordID, rec.Payload)

				status := diskbuf.AckSuccess
				if ackFailed {
					status = diskbuf.AckFailed
				}
				ack.Resolve(status)
			}
		},
	}
	cmd.Flags().BoolVar(&follow, "follow", false, "block and wait for new records instead of stopping once the buffer is drained")
	cmd.Flags().BoolVar(&ackFailed, "no-ack", false, "resolve every record as failed instead of success (the checkpoint still advances past failed records, so they are not redelivered)")
	return cmd
}

// inspectCmd prints the buffer's current size and progress.
func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "print the buffer's current size and progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := diskbuf.Open(diskbuf.DefaultOptions(dataDir))
			if err != nil {
				return fmt.Errorf("failed to open buffer: %w", err)
			}
			defer func() { _ = buf.Close() }()

			s := buf.Stats()
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "total_records:       %d\n", s.TotalRecords)
			fmt.Fprintf(w, "total_buffer_bytes:  %d\n", s.TotalBufferBytes)
			fmt.Fprintf(w, "pending_acks:        %d\n", s.PendingAcks)
			fmt.Fprintf(w, "unacked_segments:    %d\n", s.UnackedSegments)
			fmt.Fprintf(w, "writer_current_file: %d\n", s.WriterCurrentID)
			fmt.Fprintf(w, "reader_current_file: %d\n", s.ReaderCurrentID)
			return nil
		},
	}
}
