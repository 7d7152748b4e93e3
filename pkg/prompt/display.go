package prompt

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Output is where results are printed.
var Output io.Writer = os.Stdout

// Display prints a titled result block.
func Display(label, message string) {
	fmt.Fprintf(Output, "\n%s\n%s\n", label, message)
}

// DisplayJSON prints obj as indented JSON under label.
func DisplayJSON(label string, obj interface{}) error {
	marshalled, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return err
	}
	Display(label, string(marshalled))
	return nil
}
