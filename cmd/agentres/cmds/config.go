package cmds

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// commands for manipulating the config
//
// - print the effective settings
// - set a single key (dotted path, e.g. search.tavily-api-key)
// - maintain the scraper's blocked domain list

func NewConfigGroupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Commands for inspecting and editing the configuration",
	}

	cmd.AddCommand(NewShowConfigCommand())
	cmd.AddCommand(NewSetConfigCommand())
	cmd.AddCommand(NewBlockedDomainsGroupCommand())

	return cmd
}

func NewShowConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadSettings(); err != nil {
				return err
			}
			b, err := yaml.Marshal(viper.AllSettings())
			if err != nil {
				return fmt.Errorf("error encoding configuration: %w", err)
			}
			if f := viper.ConfigFileUsed(); f != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", f)
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
}

func NewSetConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a key in the config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			configFile, err := configFileForWriting()
			if err != nil {
				return err
			}
			root, err := readAndParseConfig(configFile)
			if err != nil {
				return err
			}

			node := findOrCreatePath(root, strings.Split(args[0], "."), yaml.ScalarNode)
			node.Value = args[1]
			node.Tag = ""

			if err := writeConfig(configFile, root); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Set %s in %s\n", args[0], configFile)
			return nil
		},
	}
}

func NewBlockedDomainsGroupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blocked-domains",
		Short: "Manage the domains the scraper refuses to fetch",
	}

	cmd.AddCommand(NewAddBlockedDomainCommand())
	cmd.AddCommand(NewRemoveBlockedDomainCommand())
	cmd.AddCommand(NewPrintBlockedDomainsCommand())

	return cmd
}

var blockedDomainsPath = []string{"scrape", "blocked-domains"}

func NewAddBlockedDomainCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add [domains...]",
		Short: "Add domains to the blocked list",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configFile, err := configFileForWriting()
			if err != nil {
				return err
			}
			root, err := readAndParseConfig(configFile)
			if err != nil {
				return err
			}

			domains := findOrCreatePath(root, blockedDomainsPath, yaml.SequenceNode)
			added := false
			for _, d := range args {
				d = strings.ToLower(strings.TrimSpace(d))
				if sequenceContains(domains, d) {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Domain %s is already blocked. Skipping.\n", d)
					continue
				}
				domains.Content = append(domains.Content, &yaml.Node{
					Kind:  yaml.ScalarNode,
					Value: d,
				})
				added = true
			}

			if added {
				if err := writeConfig(configFile, root); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Blocked domains:")
				printSequence(cmd, domains)
			}
			return nil
		},
	}
}

func NewRemoveBlockedDomainCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [domains...]",
		Short: "Remove domains from the blocked list",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configFile := viper.ConfigFileUsed()
			if configFile == "" {
				return fmt.Errorf("no config file found")
			}
			root, err := readAndParseConfig(configFile)
			if err != nil {
				return err
			}

			domains := findOrCreatePath(root, blockedDomainsPath, yaml.SequenceNode)
			removed := false
			for _, d := range args {
				if removeFromSequence(domains, strings.ToLower(strings.TrimSpace(d))) {
					removed = true
				} else {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Domain %s is not blocked. Skipping.\n", d)
				}
			}

			if removed {
				if err := writeConfig(configFile, root); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Blocked domains:")
				printSequence(cmd, domains)
			}
			return nil
		},
	}
}

func NewPrintBlockedDomainsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the blocked domains",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, d := range viper.GetStringSlice("scrape.blocked-domains") {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "- %s\n", d)
			}
			return nil
		},
	}
}

// configFileForWriting returns the loaded config file, or creates
// ~/.agentres/agentres.yaml when none was found.
func configFileForWriting() (string, error) {
	if f := viper.ConfigFileUsed(); f != "" {
		if _, err := os.Stat(f); err == nil {
			return f, nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("error finding home directory: %w", err)
	}
	dir := home + "/.agentres"
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating %s: %w", dir, err)
	}
	f := dir + "/agentres.yaml"
	if _, err := os.Stat(f); os.IsNotExist(err) {
		if err := os.WriteFile(f, []byte{}, 0o600); err != nil {
			return "", fmt.Errorf("error creating config file: %w", err)
		}
	}
	return f, nil
}

// findOrCreatePath walks the mapping keys in path, creating missing levels.
// The last node is replaced when it is not of the wanted kind.
func findOrCreatePath(root *yaml.Node, path []string, kind yaml.Kind) *yaml.Node {
	var mapNode *yaml.Node
	if len(root.Content) > 0 && root.Content[0].Kind == yaml.MappingNode {
		mapNode = root.Content[0]
	} else {
		mapNode = &yaml.Node{Kind: yaml.MappingNode}
		root.Kind = yaml.DocumentNode
		root.Content = []*yaml.Node{mapNode}
	}

	for i, key := range path {
		want := yaml.MappingNode
		if i == len(path)-1 {
			want = kind
		}

		var next *yaml.Node
		for j := 0; j < len(mapNode.Content); j += 2 {
			if mapNode.Content[j].Value == key {
				if mapNode.Content[j+1].Kind != want {
					mapNode.Content[j+1] = &yaml.Node{Kind: want}
				}
				next = mapNode.Content[j+1]
				break
			}
		}
		if next == nil {
			next = &yaml.Node{Kind: want}
			mapNode.Content = append(mapNode.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, next)
		}
		mapNode = next
	}
	return mapNode
}

func sequenceContains(seq *yaml.Node, value string) bool {
	for _, node := range seq.Content {
		if node.Value == value {
			return true
		}
	}
	return false
}

func removeFromSequence(seq *yaml.Node, value string) bool {
	for i, node := range seq.Content {
		if node.Value == value {
			seq.Content = append(seq.Content[:i], seq.Content[i+1:]...)
			return true
		}
	}
	return false
}

func printSequence(cmd *cobra.Command, seq *yaml.Node) {
	for _, node := range seq.Content {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "- %s\n", node.Value)
	}
}

func readAndParseConfig(configFile string) (*yaml.Node, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var root yaml.Node
	err = yaml.Unmarshal(data, &root)
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &root, nil
}

func writeConfig(configFile string, root *yaml.Node) error {
	f, err := os.Create(configFile)
	if err != nil {
		return fmt.Errorf("error opening config file for writing: %w", err)
	}
	defer f.Close()

	encoder := yaml.NewEncoder(f)
	encoder.SetIndent(2)
	err = encoder.Encode(root)
	if err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
