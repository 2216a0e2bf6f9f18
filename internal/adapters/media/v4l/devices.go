package v4l

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/byteom/scanstation/internal/core/domain"
	"github.com/byteom/scanstation/internal/core/ports"
)

const (
	DefaultSysfsRoot = "/sys/class/video4linux"
	DefaultDevRoot   = "/dev"
)

// openDevice allows mocking device access in tests
var openDevice = func(path string) (io.Closer, error) {
	return os.OpenFile(path, os.O_RDWR, 0)
}

// Devices exposes V4L2 capture nodes found in sysfs.
type Devices struct {
	sysfsRoot string
	devRoot   string
}

// NewDevices creates a device source. Empty roots use the system defaults.
func NewDevices(sysfsRoot, devRoot string) *Devices {
	if sysfsRoot == "" {
		sysfsRoot = DefaultSysfsRoot
	}
	if devRoot == "" {
		devRoot = DefaultDevRoot
	}
	return &Devices{sysfsRoot: sysfsRoot, devRoot: devRoot}
}

type node struct {
	num int
	dev domain.CameraDevice
}

// EnumerateDevices lists capture nodes ordered by device number. Metadata
// nodes (index != 0) are skipped. A missing sysfs class means no cameras.
func (d *Devices) EnumerateDevices(ctx context.Context) ([]domain.CameraDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(d.sysfsRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", d.sysfsRoot, err)
	}

	var nodes []node
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "video") {
			continue
		}
		num, err := strconv.Atoi(strings.TrimPrefix(name, "video"))
		if err != nil {
			continue
		}
		if idx := readAttr(filepath.Join(d.sysfsRoot, name, "index")); idx != "" && idx != "0" {
			continue
		}

		label := readAttr(filepath.Join(d.sysfsRoot, name, "name"))
		if label == "" {
			label = name
		}
		nodes = append(nodes, node{
			num: num,
			dev: domain.CameraDevice{ID: filepath.Join(d.devRoot, name), Label: label},
		})
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].num < nodes[j].num })

	devices := make([]domain.CameraDevice, 0, len(nodes))
	for _, n := range nodes {
		devices = append(devices, n.dev)
	}
	return devices, nil
}

func readAttr(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// stream holds the device node open for as long as it is acquired.
type stream struct {
	id   string
	f    io.Closer
	once sync.Once
}

func (s *stream) DeviceID() string { return s.id }

// AcquireStream opens the device node. An empty id picks the first capture node.
// The facing hint has no meaning for V4L2 and is ignored.
func (d *Devices) AcquireStream(ctx context.Context, deviceID string, c domain.StreamConstraints) (ports.StreamHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if deviceID == "" {
		devices, err := d.EnumerateDevices(ctx)
		if err != nil {
			return nil, err
		}
		if len(devices) == 0 {
			return nil, domain.ErrCameraNotFound
		}
		deviceID = devices[0].ID
	}
	if !domain.IsValidDeviceID(deviceID) {
		return nil, fmt.Errorf("%w: invalid device id %q", domain.ErrCameraNotFound, deviceID)
	}

	f, err := openDevice(deviceID)
	if err != nil {
		return nil, classifyOpenError(deviceID, err)
	}
	return &stream{id: deviceID, f: f}, nil
}

// ReleaseStream closes the device node. Releasing twice is a no-op.
func (d *Devices) ReleaseStream(h ports.StreamHandle) error {
	s, ok := h.(*stream)
	if !ok {
		return fmt.Errorf("unknown stream handle %T", h)
	}
	var err error
	s.once.Do(func() { err = s.f.Close() })
	return err
}

// classifyOpenError maps errno values to camera errors.
func classifyOpenError(id string, err error) error {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s: %w", domain.ErrCameraPermission, id, err)
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENODEV), errors.Is(err, syscall.ENXIO):
		return fmt.Errorf("%w: %s: %w", domain.ErrCameraNotFound, id, err)
	case errors.Is(err, syscall.EBUSY):
		return fmt.Errorf("%w: %s: %w", domain.ErrCameraInUse, id, err)
	case errors.Is(err, syscall.EIO), errors.Is(err, syscall.EAGAIN):
		return fmt.Errorf("%w: %s: %w", domain.ErrCameraBusy, id, err)
	}
	return fmt.Errorf("open %s: %w", id, err)
}

var _ ports.MediaDevices = (*Devices)(nil)
