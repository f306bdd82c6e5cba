package gymeacfg

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/gymon/internal/command"
)

// DefaultPathTemplate locates one instance's configuration; %d is the instance id.
const DefaultPathTemplate = "/opt/gymea/instance%d/CurrentConfigs.xml"

// segmentCount is the number of SegY<N> offsets reported per instance.
const segmentCount = 11

var (
	ErrInstanceRange = errors.New("gymeacfg: instance out of range")
	ErrNotFound      = errors.New("gymeacfg: value not configured")
)

// LookupError names the configuration source that could not be read.
type LookupError struct {
	Path string
	Err  error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("gymeacfg: %s: %v", e.Path, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// Lookup resolves per-instance configuration values.
type Lookup interface {
	Offsets(instance int) (string, error)
	Color(instance int) (string, error)
}

// XMLStore reads one CurrentConfigs XML document per instance.
type XMLStore struct {
	PathTemplate string
}

func NewXMLStore(pathTemplate string) *XMLStore {
	if strings.TrimSpace(pathTemplate) == "" {
		pathTemplate = DefaultPathTemplate
	}
	return &XMLStore{PathTemplate: pathTemplate}
}

// Path returns the document location for instance.
func (s *XMLStore) Path(instance int) string {
	return fmt.Sprintf(s.PathTemplate, instance)
}

type currentConfigs struct {
	XMLName     xml.Name    `xml:"CurrentConfigs"`
	ResourceMgr resourceMgr `xml:"ResourceMgr"`
}

type resourceMgr struct {
	PageX            string `xml:"PageX"`
	MediaSensorDelay string `xml:"MediaSensorDelay"`
	DisplayColor     string `xml:"DisplayColor"`
	SegY0            string `xml:"SegY0"`
	SegY1            string `xml:"SegY1"`
	SegY2            string `xml:"SegY2"`
	SegY3            string `xml:"SegY3"`
	SegY4            string `xml:"SegY4"`
	SegY5            string `xml:"SegY5"`
	SegY6            string `xml:"SegY6"`
	SegY7            string `xml:"SegY7"`
	SegY8            string `xml:"SegY8"`
	SegY9            string `xml:"SegY9"`
	SegY10           string `xml:"SegY10"`
}

func (r resourceMgr) segments() [segmentCount]string {
	return [segmentCount]string{
		r.SegY0, r.SegY1, r.SegY2, r.SegY3, r.SegY4, r.SegY5,
		r.SegY6, r.SegY7, r.SegY8, r.SegY9, r.SegY10,
	}
}

func (s *XMLStore) load(instance int) (resourceMgr, error) {
	if !command.ValidInstance(instance) {
		return resourceMgr{}, fmt.Errorf("%w: %d", ErrInstanceRange, instance)
	}
	path := s.Path(instance)
	data, err := os.ReadFile(path)
	if err != nil {
		return resourceMgr{}, &LookupError{Path: path, Err: err}
	}
	var doc currentConfigs
	if err := xml.Unmarshal(data, &doc); err != nil {
		return resourceMgr{}, &LookupError{Path: path, Err: err}
	}
	return doc.ResourceMgr, nil
}

// Offsets formats the PageX, MediaSensorDelay and segment offsets of instance.
// The result carries its own CRLF terminator.
func (s *XMLStore) Offsets(instance int) (string, error) {
	mgr, err := s.load(instance)
	if err != nil {
		return "", err
	}
	segs := mgr.segments()
	values := make([]string, 0, segmentCount)
	for _, v := range segs {
		values = append(values, orZero(v))
	}
	return fmt.Sprintf(
		"Offset Gymea instance %d: PageX: %s, MediaSensorDelay: %s, Segments: [ %s ]\r\n",
		instance,
		orZero(mgr.PageX),
		orZero(mgr.MediaSensorDelay),
		strings.Join(values, ", "),
	), nil
}

// Color returns the display color configured for instance.
func (s *XMLStore) Color(instance int) (string, error) {
	mgr, err := s.load(instance)
	if err != nil {
		return "", err
	}
	color := strings.TrimSpace(mgr.DisplayColor)
	if color == "" {
		return "", &LookupError{Path: s.Path(instance), Err: ErrNotFound}
	}
	return color, nil
}

func orZero(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "0"
	}
	return v
}

// Source returns the identifier to report when err came from a lookup.
func Source(err error) string {
	var le *LookupError
	if errors.As(err, &le) {
		return le.Path
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
