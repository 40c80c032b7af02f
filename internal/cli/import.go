package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/docagg/internal/emulator"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Partition string
}

// ImportResult reports an import.
type ImportResult struct {
	Partition string `json:"partition"`
	Imported  int    `json:"imported"`
	Total     int    `json:"total"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <documents-file>",
		Short: "Load documents into the emulator",
		Long: `Load documents into one partition of the emulator database.

The file holds either a JSON array of objects or one JSON object per line.
Documents without an "id" get a generated one; existing ids are replaced.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Partition, "partition", "p", "", "partition key (required)")
	_ = cmd.MarkFlagRequired("partition")

	return cmd
}

func runImport(opts *ImportOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	data, err := os.ReadFile(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "reading documents", err)
	}
	docs, err := ReadDocuments(data)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDecode, "decoding documents", err)
	}

	cfg, err := opts.Config()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "loading config", err)
	}
	emu, err := emulator.Open(cfg.Emulator.Path, cfg.Emulator.Options()...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "opening emulator", err)
	}
	defer emu.Close()

	ctx := cmd.Context()
	n, err := emu.ImportDocuments(ctx, opts.Partition, docs)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "importing documents", err)
	}
	total, err := emu.CountDocuments(ctx, opts.Partition)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "counting documents", err)
	}
	formatter.VerboseLog("Imported %d document(s) from %s into %s", n, path, cfg.Emulator.Path)

	result := ImportResult{Partition: opts.Partition, Imported: n, Total: total}
	if formatter.JSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Imported %d document(s) into partition %s (%d total)\n", n, opts.Partition, total)
	return nil
}

// ReadDocuments decodes a JSON array of documents or newline-delimited JSON
// documents. Blank lines are skipped.
func ReadDocuments(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var docs []json.RawMessage
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			return nil, err
		}
		return docs, nil
	}

	var docs []json.RawMessage
	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		if !json.Valid(text) {
			return nil, fmt.Errorf("line %d: invalid JSON", line)
		}
		docs = append(docs, json.RawMessage(bytes.Clone(text)))
	}
	return docs, sc.Err()
}
