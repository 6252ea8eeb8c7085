// Package localization writes location properties of the device into JMeter's user.properties,
// followed by region-specific property files found in the worker directory.
package localization

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/airbloc/logger"
	jsoniter "github.com/json-iterator/go"
)

const (
	blockBegin = "# --- loadshard localization begin ---"
	blockEnd   = "# --- loadshard localization end ---"

	// CountryKey is overridden with the region assigned to the worker.
	CountryKey = "country"
)

var log = logger.New("localization")

// Warning is a localization failure. It is never fatal: the run continues with
// reduced localization.
type Warning struct {
	Reason string
	Err    error
}

func (w *Warning) Error() string {
	return "localization: " + w.message()
}

func (w *Warning) message() string {
	if w.Err == nil {
		return w.Reason
	}
	return fmt.Sprintf("%s: %v", w.Reason, w.Err)
}

func (w *Warning) Unwrap() error {
	return w.Err
}

// DeviceInfo holds location attributes of the device, e.g. country, country-code, area, locality.
type DeviceInfo map[string]interface{}

// LoadDeviceInfo reads the device location document.
func LoadDeviceInfo(path string) (DeviceInfo, error) {
	data, err := os.ReadFile(expandHome(path))
	if err != nil {
		return nil, err
	}
	info := make(DeviceInfo)
	if err := jsoniter.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return info, nil
}

// Get returns the attribute value as a string.
func (d DeviceInfo) Get(key string) (string, bool) {
	v, ok := d[key]
	if !ok || v == nil {
		return "", false
	}
	return fmt.Sprint(v), true
}

// Localizer writes location properties of the device into JMeter's user.properties.
type Localizer struct {
	opt Options
}

func New(opt Options) *Localizer {
	return &Localizer{opt: opt}
}

// Apply localizes the JMeter runtime for a worker assigned to given region.
// It never aborts; every problem is logged and returned as a warning.
func (l *Localizer) Apply(region string) (warnings []*Warning) {
	warn := func(w *Warning) {
		log.Warn("{}", w.message())
		warnings = append(warnings, w)
	}

	info, err := LoadDeviceInfo(l.opt.DeviceLocationPath)
	if err != nil {
		warn(&Warning{Reason: "failed to load " + l.opt.DeviceLocationPath + ", missing localization properties", Err: err})
		info = make(DeviceInfo)
	}
	if region != "" {
		info[CountryKey] = region
	}

	var block strings.Builder
	block.WriteString(blockBegin + "\n")
	for _, key := range sortedKeys(info) {
		v, _ := info.Get(key)
		block.WriteString(key + "=" + v + "\n")
	}
	for _, key := range l.opt.AreaKeys {
		value, ok := info.Get(key)
		if !ok {
			warn(&Warning{Reason: key + " data not available on the device"})
			continue
		}
		propsPath := filepath.Join(l.opt.WorkerDir, value+".properties")
		content, err := os.ReadFile(propsPath)
		if err != nil {
			if !os.IsNotExist(err) {
				warn(&Warning{Reason: "unable to read " + propsPath, Err: err})
			}
			continue
		}
		log.Info("Appending {} properties from {}", key, propsPath)
		block.Write(content)
		if len(content) > 0 && content[len(content)-1] != '\n' {
			block.WriteString("\n")
		}
	}
	block.WriteString(blockEnd + "\n")

	propsPath := filepath.Join(l.opt.JMeterBinDir, l.opt.UserPropertiesFile)
	if err := replaceBlock(propsPath, block.String()); err != nil {
		warn(&Warning{Reason: "unable to update " + propsPath, Err: err})
	}
	return warnings
}

// replaceBlock appends the block to the file, replacing the one written by a previous run.
func replaceBlock(path, block string) error {
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	var out strings.Builder
	inBlock := false
	sc := bufio.NewScanner(strings.NewReader(string(existing)))
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == blockBegin:
			inBlock = true
		case line == blockEnd:
			inBlock = false
		case !inBlock:
			out.WriteString(line + "\n")
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	content := strings.TrimRight(out.String(), "\n")
	if content != "" {
		content += "\n\n"
	}
	content += block

	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), mode); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func sortedKeys(info DeviceInfo) []string {
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
