// Shared helpers for taskpad CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/taskpad/internal/store"
	"github.com/mesh-intelligence/taskpad/pkg/types"
)

// session is an open store plus the settings it was opened with.
type session struct {
	cfg    types.Config
	logger *log.Logger
	store  *store.Store
}

// withStore opens the store, runs fn, and shuts the store down so pending
// changes reach disk before the command returns.
func withStore(cmd *cobra.Command, flags *rootFlags, fn func(*session) error) (err error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	s, err := store.Open(cfg, store.WithLogger(logger))
	if err != nil {
		return sysErr(fmt.Errorf("open store: %w", err))
	}
	defer func() {
		if serr := s.Shutdown(); serr != nil && err == nil {
			err = sysErr(fmt.Errorf("save: %w", serr))
		}
	}()
	return fn(&session{cfg: cfg, logger: logger, store: s})
}

// emit writes v as indented JSON in --json mode and calls human otherwise.
func emit(cmd *cobra.Command, flags *rootFlags, v any, human func(w io.Writer)) error {
	w := cmd.OutOrStdout()
	if !flags.jsonMode {
		human(w)
		return nil
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return sysErr(fmt.Errorf("marshal JSON: %w", err))
	}
	fmt.Fprintln(w, string(out))
	return nil
}

// formatRecord renders one list line: position, check box, text, and the
// set extension fields.
func formatRecord(r types.Record) string {
	box := "[ ]"
	if r.Completed {
		box = "[x]"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%3d %s %s", r.Position, box, r.Text)
	if r.DueDate != nil {
		fmt.Fprintf(&b, "  due:%s", *r.DueDate)
	}
	if r.Priority != nil {
		fmt.Fprintf(&b, "  !%s", *r.Priority)
	}
	if r.Category != nil {
		fmt.Fprintf(&b, "  @%s", *r.Category)
	}
	for _, tag := range r.Tags {
		fmt.Fprintf(&b, "  #%s", tag)
	}
	fmt.Fprintf(&b, "  (%s)", r.ID)
	return b.String()
}

func printRecord(w io.Writer, r types.Record) {
	fmt.Fprintf(w, "ID:        %s\n", r.ID)
	fmt.Fprintf(w, "Text:      %s\n", r.Text)
	fmt.Fprintf(w, "Completed: %t\n", r.Completed)
	fmt.Fprintf(w, "Position:  %d\n", r.Position)
	fmt.Fprintf(w, "Created:   %s\n", r.CreatedAt)
	optional := []struct {
		label string
		value *string
	}{
		{"Due:       ", r.DueDate},
		{"Priority:  ", r.Priority},
		{"Category:  ", r.Category},
		{"Color:     ", r.Color},
		{"Notes:     ", r.Notes},
		{"Modified:  ", r.ModifiedAt},
	}
	for _, o := range optional {
		if o.value != nil {
			fmt.Fprintf(w, "%s%s\n", o.label, *o.value)
		}
	}
	if len(r.Tags) > 0 {
		fmt.Fprintf(w, "Tags:      %s\n", strings.Join(r.Tags, ", "))
	}
}

// optionalString returns a pointer to the flag's value when it was set on
// the command line, nil otherwise.
func optionalString(cmd *cobra.Command, name string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	return &v
}
