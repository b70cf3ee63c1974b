// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-identity.
//
// go-identity is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

// PrintList prints a titled list of names.
func (p *Printer) PrintList(title string, names []string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{title: names})
	case OutputFormatText:
		for _, n := range names {
			fmt.Fprintln(p.writer, n)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintResult prints the result of an item operation. A successful read
// prints the raw value in text mode so it can be piped.
func (p *Printer) PrintResult(event string, r types.Result) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(struct {
			Event string `json:"event"`
			types.Result
		}{event, r})
	case OutputFormatText:
		switch {
		case !r.Success:
			fmt.Fprintf(p.writer, "%s %s: failed (code %d): %s\n", event, r.Identifier, r.Code, r.Error)
		case event == types.EventRead:
			_, err := p.writer.Write(r.Value)
			return err
		case event == types.EventExists:
			fmt.Fprintf(p.writer, "%t\n", r.Exists)
		default:
			fmt.Fprintf(p.writer, "%s %s: ok\n", event, r.Identifier)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintAuthentication prints the result of an authentication prompt.
func (p *Printer) PrintAuthentication(r types.AuthenticationResult) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(r)
	case OutputFormatText:
		switch {
		case !r.Success:
			fmt.Fprintf(p.writer, "authentication failed (code %d): %s\n", r.Code, r.Error)
		case r.Reused:
			fmt.Fprintln(p.writer, "authenticated (reused)")
		default:
			fmt.Fprintln(p.writer, "authenticated")
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// DeviceInfo is the device report printed by "identity device".
type DeviceInfo struct {
	Supported    bool                   `json:"supported"`
	BiometryType string                 `json:"biometryType"`
	Policy       string                 `json:"policy"`
	Status       types.DeviceAuthStatus `json:"status"`
	Store        storage.Capabilities   `json:"store"`
}

// PrintDevice prints a device report.
func (p *Printer) PrintDevice(d DeviceInfo) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(d)
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Supported:        %t\n", d.Supported)
		fmt.Fprintf(p.writer, "Biometry type:    %s\n", d.BiometryType)
		fmt.Fprintf(p.writer, "Policy:           %s\n", d.Policy)
		fmt.Fprintf(p.writer, "Can authenticate: %t\n", d.Status.CanAuthenticate)
		if d.Status.Error != "" {
			fmt.Fprintf(p.writer, "Reason:           %s (code %d)\n", d.Status.Error, d.Status.Code)
		}
		fmt.Fprintf(p.writer, "Store:            %s (hardware backed: %t)\n", d.Store.Name, d.Store.HardwareBacked)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"error": err.Error(),
			"code":  types.CodeOf(err),
		})
	default:
		_, werr := fmt.Fprintf(p.writer, "Error: %v\n", err)
		return werr
	}
}

func (p *Printer) printJSON(v interface{}) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
