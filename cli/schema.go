package cli

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/speakwise/videosignal/transcript"
)

var schemaTargets = map[string]any{
	"text":   &transcript.TextTranscript{},
	"frames": &transcript.ImagesTranscript{},
	"final":  &transcript.Final{},
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "schema [text|frames|final]",
		Short:     "Print the JSON Schema of a pipeline record",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"text", "frames", "final"},
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "final"
			if len(args) == 1 {
				name = args[0]
			}
			b, err := recordSchema(name)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		},
	}
}

// recordSchema reflects the record type with every field required, which is
// the fixed key-path contract consumers rely on.
func recordSchema(name string) ([]byte, error) {
	v, ok := schemaTargets[name]
	if !ok {
		return nil, fmt.Errorf("unknown record %q", name)
	}
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return json.MarshalIndent(r.Reflect(v), "", "  ")
}
