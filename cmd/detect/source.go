package main

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-yolo/util"
)

// frameSource yields BGR frames until it is exhausted.
type frameSource interface {
	// Read fills mat with the next frame. It returns false at the end of the source.
	Read(mat *gocv.Mat) bool
	Close() error
	String() string
}

type captureSource struct {
	capture *gocv.VideoCapture
	name    string
}

func (s *captureSource) Read(mat *gocv.Mat) bool { return s.capture.Read(mat) }
func (s *captureSource) Close() error            { return s.capture.Close() }
func (s *captureSource) String() string          { return s.name }

type directorySource struct {
	files []util.ImageFile
	next  int
	name  string
}

func (s *directorySource) Read(mat *gocv.Mat) bool {
	for s.next < len(s.files) {
		file := s.files[s.next]
		s.next++
		decoded, err := gocv.IMDecode(file.Data, gocv.IMReadColor)
		if err != nil {
			continue
		}
		if decoded.Empty() {
			decoded.Close()
			continue
		}
		decoded.CopyTo(mat)
		decoded.Close()
		return true
	}
	return false
}

func (s *directorySource) Close() error   { return nil }
func (s *directorySource) String() string { return s.name }

// openSource picks the frame directory, then the video file, then the camera.
func openSource(framesDir, videoPath string, deviceID int) (frameSource, error) {
	switch {
	case framesDir != "":
		files, err := util.LoadDirectoryImageFiles(framesDir)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, errors.Errorf("no frames in %s", framesDir)
		}
		return &directorySource{files: files, name: framesDir}, nil

	case videoPath != "":
		capture, err := gocv.VideoCaptureFile(videoPath)
		if err != nil {
			return nil, errors.Wrapf(err, "open video %s", videoPath)
		}
		return &captureSource{capture: capture, name: videoPath}, nil

	default:
		capture, err := gocv.VideoCaptureDevice(deviceID)
		if err != nil {
			return nil, errors.Wrapf(err, "open device %d", deviceID)
		}
		return &captureSource{capture: capture, name: "device"}, nil
	}
}
