package presence

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Discovery enumerates devices currently associated with the local network.
type Discovery interface {
	Devices(ctx context.Context) ([]string, error)
}

// ARPTable runs `arp -a` and keeps entries marked dynamic.
type ARPTable struct {
	Command string
	run     func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewARPTable returns a discovery backed by the system arp command.
func NewARPTable() *ARPTable {
	return &ARPTable{Command: "arp"}
}

func (a *ARPTable) Devices(ctx context.Context) ([]string, error) {
	run := a.run
	if run == nil {
		run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		}
	}
	cmd := a.Command
	if cmd == "" {
		cmd = "arp"
	}
	out, err := run(ctx, cmd, "-a")
	if err != nil {
		return nil, fmt.Errorf("arp -a: %w", err)
	}
	return ParseARP(out), nil
}

// ParseARP extracts the address column of every dynamic entry.
func ParseARP(out []byte) []string {
	var devices []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if !strings.Contains(strings.ToLower(line), "dynamic") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		devices = append(devices, fields[0])
	}
	return devices
}

// ProcARP reads the Linux neighbour table from /proc/net/arp.
type ProcARP struct {
	Path string
}

func (p ProcARP) Devices(_ context.Context) ([]string, error) {
	path := p.Path
	if path == "" {
		path = "/proc/net/arp"
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ParseProcARP(b), nil
}

// ParseProcARP returns the IP of each complete (flags 0x2) neighbour entry.
func ParseProcARP(b []byte) []string {
	var devices []string
	sc := bufio.NewScanner(bytes.NewReader(b))
	first := true
	for sc.Scan() {
		if first {
			first = false
			continue
		}
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 {
			continue
		}
		if fields[2] != "0x2" || fields[3] == "00:00:00:00:00:00" {
			continue
		}
		devices = append(devices, fields[0])
	}
	return devices
}

// Static always reports the configured devices.
type Static []string

func (s Static) Devices(context.Context) ([]string, error) {
	return append([]string(nil), s...), nil
}

// New returns the discovery named by kind.
func New(kind, arpPath string, devices []string) (Discovery, error) {
	switch kind {
	case "", "arp":
		return NewARPTable(), nil
	case "procfs":
		return ProcARP{Path: arpPath}, nil
	case "static":
		return Static(devices), nil
	}
	return nil, fmt.Errorf("unknown presence discovery %q", kind)
}
