// Package basler exposes a Basler industrial camera through the same
// open/read/release convention as gocv.VideoCapture.
//
// A Camera stores its Options at construction and touches the device only on
// Open (or the first Read). Open binds the device, writes pixel format,
// exposure and frame rate once, and starts latest-image-only grabbing. Read
// returns the newest frame, demosaiced with the fixed Bayer code of its layout
// when the pixel format is one of the four 8-bit Bayer tags, and resized when
// Options.Resize is set. Demosaiced frames are in OpenCV's usual BGR order;
// see Options.OutputIsRGB.
//
// Backends:
//   - pylon  - Basler pylon C SDK (build tag "pylon", needs cgo)
//   - replay - video or image files played as a sensor
//   - mock   - synthetic frames for tests
//
// Typical use:
//
//	cam := basler.New(backend, basler.DefaultOptions().WithExposure(16700))
//	err := cam.Use(func(c *basler.Camera) error {
//		frame := gocv.NewMat()
//		defer frame.Close()
//		ok, err := c.Read(&frame)
//		...
//	})
package basler
