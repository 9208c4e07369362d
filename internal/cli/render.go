package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/romega/certforge/pkg/assets"
	"github.com/romega/certforge/pkg/cert"
	"github.com/romega/certforge/pkg/cert/compose"
	"github.com/romega/certforge/pkg/fonts"
)

// renderOpts holds the command-line flags for the render command.
type renderOpts struct {
	output  string   // output PNG path; empty derives one from the recipient name
	name    string   // recipient name
	email   string   // recipient email
	title   string   // certificate title
	date    string   // certificate date
	fields  []string // extra custom fields as key=value pairs
	example bool     // print an example design file and exit
}

// newRenderCmd creates the render command for generating a single
// certificate. It is the quick way to proof a design before running a
// whole batch.
func newRenderCmd() *cobra.Command {
	var opts renderOpts

	cmd := &cobra.Command{
		Use:   "render [design.json]",
		Short: "Render a single certificate to a PNG file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.example {
				fmt.Println(exampleDesign)
				return nil
			}
			if len(args) != 1 {
				return fmt.Errorf("design file required (or use --example)")
			}
			return runRender(cmd, args[0], &opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output PNG file (default: <recipient>.png)")
	cmd.Flags().StringVar(&opts.name, "name", "", "recipient name substituted for {{name}}")
	cmd.Flags().StringVar(&opts.email, "email", "", "recipient email (informational)")
	cmd.Flags().StringVar(&opts.title, "title", "", "certificate title substituted for {{title}}")
	cmd.Flags().StringVar(&opts.date, "date", "", "certificate date substituted for {{date}}")
	cmd.Flags().StringArrayVar(&opts.fields, "field", nil, "custom field as key=value (repeatable)")
	cmd.Flags().BoolVar(&opts.example, "example", false, "print an example design file and exit")

	return cmd
}

func runRender(cmd *cobra.Command, designPath string, opts *renderOpts) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	design, err := cert.LoadDesign(designPath)
	if err != nil {
		return err
	}
	logger.Debug("loaded design", "template", design.Template.Name,
		"texts", len(design.TextElements), "images", len(design.ImageElements))

	custom, err := parseFields(opts.fields)
	if err != nil {
		return err
	}
	recipient := cert.Recipient{
		Name:         opts.name,
		Email:        opts.email,
		Title:        opts.title,
		Date:         opts.date,
		CustomFields: custom,
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	assetCache, err := cfg.OpenCache(ctx)
	if err != nil {
		return err
	}
	defer assetCache.Close()

	spinner := newSpinnerWithContext(ctx, "Rendering certificate...")
	spinner.Start()

	loader := assets.NewLoader(assets.WithCache(assetCache))
	loaded, err := compose.Preload(ctx, loader, design)
	if err != nil {
		spinner.Stop()
		return err
	}
	renderer, err := compose.NewRenderer(design.Template, fonts.NewLibrary(fonts.WithDirs(cfg.Fonts.Dirs...)))
	if err != nil {
		spinner.Stop()
		return err
	}
	png, err := renderer.Render(ctx, loaded, design.TextElements, &recipient)
	spinner.Stop()
	if err != nil {
		return err
	}

	out := opts.output
	if out == "" {
		out = certificateFilename(recipient.Name)
	}
	if err := os.WriteFile(out, png, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	printSuccess("Rendered certificate (%d KB)", len(png)/1024)
	printFile(out)
	return nil
}

// parseFields parses repeated key=value flags into a custom fields map.
func parseFields(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	fields := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --field %q (expected key=value)", pair)
		}
		fields[key] = value
	}
	return fields, nil
}

// certificateFilename derives an output filename from a recipient name.
func certificateFilename(name string) string {
	base := sanitizeFilename(name)
	if base == "" {
		base = "certificate"
	}
	return base + ".png"
}

// sanitizeFilename makes a recipient name safe to use as a filename:
// path separators and characters special on common filesystems are
// replaced with underscores, and surrounding whitespace is dropped.
func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' ||
			r == '"' || r == '<' || r == '>' || r == '|' || r == 0:
			b.WriteRune('_')
		case r == ' ':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "._")
}

// exampleDesign is the sample printed by --example. The background uses a
// file path; data URIs and http(s) URLs work as well.
const exampleDesign = `{
  "template": {
    "id": "completion-2026",
    "name": "Course Completion",
    "backgroundImage": "background.png",
    "width": 1600,
    "height": 1131
  },
  "textElements": [
    {
      "id": "recipient",
      "text": "{{name}}",
      "position": { "x": 800, "y": 480 },
      "fontSize": 64,
      "fontFamily": "Georgia",
      "color": "#1a1a2e",
      "fontWeight": "bold",
      "textAlign": "center",
      "maxWidth": 1100
    },
    {
      "id": "course",
      "text": "has completed {{title}}\non {{date}}",
      "position": { "x": 800, "y": 600 },
      "fontSize": 28,
      "color": "#444444",
      "textAlign": "center"
    }
  ],
  "imageElements": [
    {
      "id": "signature",
      "src": "signature.png",
      "position": { "x": 1180, "y": 920 },
      "width": 220,
      "height": 90,
      "type": "signature"
    }
  ]
}`
