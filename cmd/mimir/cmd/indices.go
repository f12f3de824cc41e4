package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newCreateCmd(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an index from a configuration file",
		Long: `Create an index from a JSON or YAML configuration holding its name,
settings and mappings. The created index is printed as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readIndexConfig(file)
			if err != nil {
				return err
			}
			idx, err := a.storage.CreateContainer(cmd.Context(), text)
			if err != nil {
				return err
			}
			return printJSON(cmd, idx)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Index configuration, JSON or YAML (- for stdin)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <index>",
		Short: "Delete an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.storage.DeleteContainer(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func newFindCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "find <index>",
		Short: "Show the state of an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := a.storage.FindContainer(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if idx == nil {
				return fmt.Errorf("index %s not found", args[0])
			}
			return printJSON(cmd, idx)
		},
	}
}

func newAliasCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "alias <alias>",
		Short: "List the indices served by an alias",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			indices, err := a.storage.AliasIndices(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, name := range indices {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

// readIndexConfig returns the configuration text of path as JSON. YAML
// files are converted.
func readIndexConfig(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read index configuration: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yamlToJSON(data)
	default:
		return string(data), nil
	}
}

func yamlToJSON(data []byte) (string, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("invalid YAML index configuration: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("index configuration cannot be expressed as JSON: %w", err)
	}
	return string(out), nil
}
