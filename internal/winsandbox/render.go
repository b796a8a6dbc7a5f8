package winsandbox

import (
	"bytes"
	_ "embed"
	"encoding/xml"
	"fmt"
	"text/template"

	"github.com/cochaviz/virtmcp/internal/vmerr"
)

//go:embed sandbox.wsb.tmpl
var wsbTemplate string

var wsb = template.Must(template.New("wsb").Funcs(template.FuncMap{
	"escape": escapeText,
	"toggle": func(b *bool) string {
		if enabled(b) {
			return "Enable"
		}
		return "Disable"
	},
}).Parse(wsbTemplate))

func escapeText(s string) (string, error) {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderXML validates cfg and renders the .wsb document. Nothing is
// returned unless validation passes.
func RenderXML(cfg SandboxConfig) ([]byte, error) {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := wsb.Execute(&buf, cfg); err != nil {
		return nil, vmerr.Wrap(vmerr.CodeSandbox, "winsandbox.render", fmt.Errorf("execute wsb template: %w", err))
	}
	return buf.Bytes(), nil
}

// Document is the parsed form of a .wsb file.
type Document struct {
	XMLName       xml.Name `xml:"Configuration"`
	VGpu          string   `xml:"VGpu"`
	Networking    string   `xml:"Networking"`
	MemoryInMB    int      `xml:"MemoryInMB"`
	MappedFolders []struct {
		HostFolder    string `xml:"HostFolder"`
		SandboxFolder string `xml:"SandboxFolder"`
		ReadOnly      bool   `xml:"ReadOnly"`
	} `xml:"MappedFolders>MappedFolder"`
	LogonCommands []string `xml:"LogonCommand>Command"`
}

// ParseXML reads a .wsb document.
func ParseXML(data []byte) (Document, error) {
	var doc Document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("parse wsb: %w", err)
	}
	return doc, nil
}
