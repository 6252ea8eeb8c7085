package localization

import "github.com/creasty/defaults"

type Options struct {
	// DeviceLocationPath is the JSON document describing the location of this machine.
	DeviceLocationPath string `default:"~/.neocortix/device-location.json"`

	// JMeterBinDir contains the user.properties file read by JMeter on start.
	JMeterBinDir       string `default:"/opt/apache-jmeter/bin"`
	UserPropertiesFile string `default:"user.properties"`

	// WorkerDir is searched for region-specific property files named after location values
	// (e.g. india.properties). Empty means the current directory.
	WorkerDir string

	// AreaKeys are location attributes, from the widest to the narrowest,
	// whose values name region-specific property files.
	AreaKeys []string `default:"[\"country\", \"country-code\", \"area\", \"locality\"]"`
}

func DefaultOptions() (o Options) {
	if err := defaults.Set(&o); err != nil {
		panic(err)
	}
	return
}
