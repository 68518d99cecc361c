package inspect

import (
	"fmt"
	"strings"

	"github.com/indiproto/indi-go/pkg/model"
	"github.com/indiproto/indi-go/pkg/wire"
)

// Formatter formats inspection output.
type Formatter struct {
	// ShowMetadata includes type, permission, group and number limits
	ShowMetadata bool

	// IndentWidth is the number of spaces per indent level
	IndentWidth int
}

// NewFormatter creates a new Formatter with default settings.
func NewFormatter() *Formatter {
	return &Formatter{
		ShowMetadata: true,
		IndentWidth:  2,
	}
}

// Indent returns the content with indentation.
func (f *Formatter) Indent(depth int, content string) string {
	width := f.IndentWidth
	if width == 0 {
		width = 2
	}
	return strings.Repeat(" ", depth*width) + content
}

// FormatMember formats the current value of one member of a property of
// type typ.
func (f *Formatter) FormatMember(typ wire.PropertyType, m model.Member) string {
	switch typ {
	case wire.PropertyText:
		return m.Text
	case wire.PropertyNumber:
		return strings.TrimSpace(model.FormatNumber(m.Number, m.Format))
	case wire.PropertySwitch:
		return m.Switch.String()
	case wire.PropertyLight:
		return m.Light.String()
	case wire.PropertyBLOB:
		if len(m.Data) == 0 {
			return "<no data>"
		}
		return fmt.Sprintf("<%d bytes %s>", len(m.Data), m.BLOBFormat)
	default:
		return ""
	}
}

// FormatProperty formats a property header followed by its members.
func (f *Formatter) FormatProperty(p *model.Property) string {
	var sb strings.Builder

	sb.WriteString(p.Name())
	if label := p.Label(); label != "" && label != p.Name() {
		fmt.Fprintf(&sb, " (%s)", label)
	}
	if f.ShowMetadata {
		meta := []string{p.Type().String(), p.Permission().String()}
		if p.Type() == wire.PropertySwitch {
			meta = append(meta, p.Rule().String())
		}
		if g := p.Group(); g != "" {
			meta = append(meta, "group="+g)
		}
		fmt.Fprintf(&sb, " [%s]", strings.Join(meta, ", "))
	}
	fmt.Fprintf(&sb, " %s\n", p.State())

	for _, m := range p.Members() {
		line := fmt.Sprintf("%s = %s", m.Name, f.FormatMember(p.Type(), m))
		if f.ShowMetadata && p.Type() == wire.PropertyNumber && (m.Min != 0 || m.Max != 0) {
			line += fmt.Sprintf("  (min %s, max %s, step %s)",
				model.FormatNumber(m.Min, ""), model.FormatNumber(m.Max, ""), model.FormatNumber(m.Step, ""))
		}
		sb.WriteString(f.Indent(1, line))
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatDevice formats a device with all of its properties.
func (f *Formatter) FormatDevice(d *model.Device) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s (%d properties)\n", d.Name(), d.PropertyCount())
	for _, p := range d.Properties() {
		for _, line := range strings.Split(strings.TrimSuffix(f.FormatProperty(p), "\n"), "\n") {
			sb.WriteString(f.Indent(1, line))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// FormatDeviceList formats a one line summary per device.
func (f *Formatter) FormatDeviceList(devices []*model.Device) string {
	if len(devices) == 0 {
		return "No devices.\n"
	}

	width := 0
	for _, d := range devices {
		width = max(width, len(d.Name()))
	}

	var sb strings.Builder
	for _, d := range devices {
		fmt.Fprintf(&sb, "%-*s  %3d properties", width, d.Name(), d.PropertyCount())
		if msg, ok := d.LastMessage(); ok {
			fmt.Fprintf(&sb, "  %s", msg.Text)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatValues formats rows as DEVICE.PROPERTY.MEMBER=VALUE lines.
func (f *Formatter) FormatValues(values []Value) string {
	var sb strings.Builder
	for _, v := range values {
		fmt.Fprintf(&sb, "%s.%s.%s=%s\n", v.Device, v.Property, v.Member, v.Value)
	}
	return sb.String()
}

// FormatMessage formats a message prefixed with its device, if any.
func (f *Formatter) FormatMessage(msg model.Message) string {
	if msg.Device == "" {
		return msg.String()
	}
	return msg.Device + " " + msg.String()
}
