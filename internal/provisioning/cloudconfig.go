package provisioning

import (
	"bytes"
	"fmt"
	"strconv"
	"text/template"
)

const cloudConfigTemplate = `#cloud-config
{{- if .PackageUpdate}}
package_update: true
{{- end}}
{{- if .Packages}}
packages:
{{- range .Packages}}
  - {{quote .}}
{{- end}}
{{- end}}
{{- if .RunCommands}}
runcmd:
{{- range .RunCommands}}
  - {{quote .}}
{{- end}}
{{- end}}
`

// CloudConfigData represents the data for cloud-config template
type CloudConfigData struct {
	// PackageUpdate refreshes the package index before installing Packages.
	PackageUpdate bool
	Packages      []string
	RunCommands   []string
}

var cloudConfigTmpl = template.Must(template.New("cloud-config").
	Funcs(template.FuncMap{"quote": strconv.Quote}).
	Parse(cloudConfigTemplate))

// GenerateCloudConfig renders the user-data script passed to a new droplet.
func GenerateCloudConfig(data CloudConfigData) (string, error) {
	var buf bytes.Buffer
	if err := cloudConfigTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute cloud-config template: %w", err)
	}
	return buf.String(), nil
}
