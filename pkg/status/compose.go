package status

import (
	"os"
	"path/filepath"
	"sort"

	yaml "github.com/jesseduffield/yaml"
)

var composeFileNames = []string{"docker-compose.yml", "docker-compose.yaml", "compose.yml", "compose.yaml"}

type composeDoc struct {
	Services map[string]any `yaml:"services"`
}

// DefinedServices parses the project's declarative compose file (if
// readable) and returns its service names sorted, per §4.F item 2.
func DefinedServices(projectDir string) []string {
	for _, name := range composeFileNames {
		path := filepath.Join(projectDir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var doc composeDoc
		if err := yaml.Unmarshal(data, &doc); err != nil {
			continue
		}
		names := make([]string, 0, len(doc.Services))
		for svc := range doc.Services {
			names = append(names, svc)
		}
		sort.Strings(names)
		return names
	}
	return nil
}

// ComposeFileReadable reports whether any recognized compose file exists
// under projectDir; it does not open the file.
func ComposeFileReadable(projectDir string) bool {
	for _, name := range composeFileNames {
		if _, err := os.Stat(filepath.Join(projectDir, name)); err == nil {
			return true
		}
	}
	return false
}
