package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xenlix/visibility-engine/internal/model"
	"github.com/xenlix/visibility-engine/internal/store"
)

var seedFile string

// seedSpec is the YAML shape of a seed file: brands with their tracked
// prompts.
type seedSpec struct {
	Brands []seedBrand `yaml:"brands"`
}

type seedBrand struct {
	Name    string       `yaml:"name"`
	Domain  string       `yaml:"domain"`
	Aliases []string     `yaml:"aliases"`
	Prompts []seedPrompt `yaml:"prompts"`
}

type seedPrompt struct {
	Text     string   `yaml:"text"`
	Keywords []string `yaml:"keywords"`
	Active   *bool    `yaml:"active"`
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load brands and prompts from a YAML file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		spec, err := loadSeedFile(seedFile)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		brands, prompts, err := applySeed(ctx, st, spec)
		if err != nil {
			return err
		}

		zap.L().Info("seed complete",
			zap.Int("brands", brands),
			zap.Int("prompts", prompts),
			zap.String("file", seedFile),
		)
		return nil
	},
}

// loadSeedFile parses and validates a seed YAML file.
func loadSeedFile(path string) (*seedSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read seed file")
	}

	var spec seedSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, eris.Wrap(err, "parse seed file")
	}

	if len(spec.Brands) == 0 {
		return nil, eris.New("seed file defines no brands")
	}
	for _, b := range spec.Brands {
		if b.Name == "" {
			return nil, eris.New("seed brand is missing a name")
		}
		if b.Domain == "" {
			return nil, eris.Errorf("seed brand %q is missing a domain", b.Name)
		}
		for _, p := range b.Prompts {
			if p.Text == "" {
				return nil, eris.Errorf("seed brand %q has a prompt with no text", b.Name)
			}
		}
	}
	return &spec, nil
}

// applySeed creates the brands and prompts from spec. Prompts default to
// active unless the seed file says otherwise.
func applySeed(ctx context.Context, st store.Store, spec *seedSpec) (brands, prompts int, err error) {
	for _, sb := range spec.Brands {
		brand, err := st.CreateBrand(ctx, model.Brand{
			Name:    sb.Name,
			Domain:  sb.Domain,
			Aliases: sb.Aliases,
		})
		if err != nil {
			return brands, prompts, eris.Wrapf(err, "create brand %q", sb.Name)
		}
		brands++

		for _, sp := range sb.Prompts {
			active := true
			if sp.Active != nil {
				active = *sp.Active
			}
			if _, err := st.CreatePrompt(ctx, model.Prompt{
				BrandID:  brand.ID,
				Text:     sp.Text,
				Keywords: sp.Keywords,
				Active:   active,
			}); err != nil {
				return brands, prompts, eris.Wrapf(err, "create prompt for brand %q", sb.Name)
			}
			prompts++
		}
	}
	return brands, prompts, nil
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "path to seed YAML (required)")
	_ = seedCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(seedCmd)
}
