package localization

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLocalizer_Apply(t *testing.T) {
	Convey("Given a device with a location document", t, func() {
		dir := t.TempDir()
		binDir := filepath.Join(dir, "bin")
		workerDir := filepath.Join(dir, "jmeterWorker")
		So(os.MkdirAll(binDir, 0o755), ShouldBeNil)
		So(os.MkdirAll(workerDir, 0o755), ShouldBeNil)

		locationPath := filepath.Join(dir, "device-location.json")
		So(os.WriteFile(locationPath, []byte(`{"country": "India", "country-code": "IN", "area": "south", "locality": "Chennai"}`), 0o644), ShouldBeNil)
		So(os.WriteFile(filepath.Join(binDir, "user.properties"), []byte("jmeter.save.saveservice.output_format=csv\n"), 0o644), ShouldBeNil)
		So(os.WriteFile(filepath.Join(workerDir, "india.properties"), []byte("target.host=in.example.com"), 0o644), ShouldBeNil)

		opt := DefaultOptions()
		opt.DeviceLocationPath = locationPath
		opt.JMeterBinDir = binDir
		opt.WorkerDir = workerDir
		l := New(opt)

		readProps := func() string {
			data, err := os.ReadFile(filepath.Join(binDir, "user.properties"))
			So(err, ShouldBeNil)
			return string(data)
		}

		Convey("When it is localized for its region", func() {
			warnings := l.Apply("india")

			Convey("It should append location properties and the regional property file", func() {
				So(warnings, ShouldBeEmpty)
				props := readProps()
				So(props, ShouldStartWith, "jmeter.save.saveservice.output_format=csv\n")
				So(props, ShouldContainSubstring, "country=india\n")
				So(props, ShouldContainSubstring, "country-code=IN\n")
				So(props, ShouldContainSubstring, "locality=Chennai\n")
				So(props, ShouldContainSubstring, "target.host=in.example.com\n")
			})

			Convey("Localizing again should not duplicate properties", func() {
				first := readProps()
				So(l.Apply("india"), ShouldBeEmpty)
				So(readProps(), ShouldEqual, first)
				So(strings.Count(readProps(), "country=india"), ShouldEqual, 1)
			})
		})

		Convey("When the location document is missing", func() {
			So(os.Remove(locationPath), ShouldBeNil)
			warnings := l.Apply("india")

			Convey("It should degrade with warnings instead of failing", func() {
				So(warnings, ShouldNotBeEmpty)
				So(warnings[0].Err, ShouldNotBeNil)
				So(readProps(), ShouldContainSubstring, "country=india\n")
				So(readProps(), ShouldContainSubstring, "target.host=in.example.com\n")
			})
		})

		Convey("When the location document is malformed", func() {
			So(os.WriteFile(locationPath, []byte(`{"country": `), 0o644), ShouldBeNil)
			warnings := l.Apply("usa")
			So(warnings, ShouldNotBeEmpty)
			So(readProps(), ShouldContainSubstring, "country=usa\n")
		})
	})
}

func TestWarning_Error(t *testing.T) {
	Convey("Given a warning with a cause", t, func() {
		w := &Warning{Reason: "unable to read india.properties", Err: os.ErrPermission}

		Convey("It should be prefixed once", func() {
			So(w.Error(), ShouldEqual, "localization: unable to read india.properties: permission denied")
			So(w.message(), ShouldEqual, "unable to read india.properties: permission denied")
		})
	})
}
