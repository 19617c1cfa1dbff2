// Export and import commands.
package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/taskpad/internal/durability"
	"github.com/mesh-intelligence/taskpad/internal/recovery"
	"github.com/mesh-intelligence/taskpad/pkg/types"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// formatFor returns the explicit format, or the one implied by the file
// extension, defaulting to JSON.
func formatFor(explicit, path string) (string, error) {
	switch explicit {
	case formatJSON, formatYAML:
		return explicit, nil
	case "":
	default:
		return "", usageError{fmt.Errorf("unknown format %q (valid: json, yaml)", explicit)}
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML, nil
	}
	return formatJSON, nil
}

func encodeRecords(records []types.Record, format string) ([]byte, error) {
	if format == formatYAML {
		if records == nil {
			records = []types.Record{}
		}
		return yaml.Marshal(records)
	}
	return durability.Encode(records)
}

// decodeRecords parses an import file. JSON goes through the data file
// decoder so records lacking a required field are reported by name.
func decodeRecords(data []byte, format string) ([]types.Record, error) {
	if format == formatYAML {
		var records []types.Record
		if err := yaml.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("%w: parse YAML: %v", types.ErrInvalidArgument, err)
		}
		return records, nil
	}

	entries, err := recovery.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: parse JSON: %v", types.ErrInvalidArgument, err)
	}
	records := make([]types.Record, 0, len(entries))
	for _, e := range entries {
		if len(e.Missing) > 0 {
			return nil, fmt.Errorf("record %d: %w", e.Index, &types.ValidationError{
				Field:  e.Missing[0],
				Reason: "is required",
			})
		}
		records = append(records, e.Record)
	}
	return records, nil
}

func newExportCmd(flags *rootFlags) *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all tasks as JSON or YAML",
		Args:  args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc, err := formatFor(format, out)
			if err != nil {
				return err
			}
			return withStore(cmd, flags, func(s *session) error {
				data, err := encodeRecords(s.store.Export(), enc)
				if err != nil {
					return sysErr(fmt.Errorf("encode export: %w", err))
				}
				if out == "" {
					_, err = cmd.OutOrStdout().Write(data)
					return sysErr(err)
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return sysErr(fmt.Errorf("write export: %w", err))
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported to %s\n", out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "output format: json or yaml (default from --out extension, else json)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func newImportCmd(flags *rootFlags) *cobra.Command {
	var format, mode string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load tasks from a JSON or YAML file",
		Long: `Load tasks from a file. In merge mode (the default) tasks whose id already
exists are skipped; replace mode swaps the whole list. Every task must carry
id, text and created_at, or nothing is imported. Use "-" to read stdin.`,
		Args: args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, a []string) error {
			importMode, err := types.ParseImportMode(mode)
			if err != nil {
				return err
			}
			dec, err := formatFor(format, a[0])
			if err != nil {
				return err
			}
			var data []byte
			if a[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(a[0])
			}
			if err != nil {
				return fmt.Errorf("read import: %w", err)
			}
			records, err := decodeRecords(data, dec)
			if err != nil {
				return err
			}
			return withStore(cmd, flags, func(s *session) error {
				n, err := s.store.Import(records, importMode)
				if err != nil {
					return err
				}
				return emit(cmd, flags, map[string]int{"added": n}, func(w io.Writer) {
					fmt.Fprintf(w, "Imported %d tasks (%s)\n", n, importMode)
				})
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "input format: json or yaml (default from file extension, else json)")
	cmd.Flags().StringVar(&mode, "mode", string(types.ImportMerge), "merge or replace")
	return cmd
}
