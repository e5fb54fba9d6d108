package wire

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Logical path prefixes on the wearable↔companion transport. Each send is
// suffixed with a monotonic sequence number so that repeated, equal-looking
// payloads are distinct delivery units and are never coalesced by the link.
const (
	SensorDataPrefix = "/sensor_data"
	BatteryPrefix    = "/battery"
	ControlPath      = "/control"
	DevicePath       = "/device"
)

// Control commands sent from the companion to the wearable.
const (
	CommandStart = "start"
	CommandStop  = "stop"
)

// Sample is a single accelerometer reading. Timestamp is device epoch
// milliseconds. Samples are immutable values compared by all four fields.
type Sample struct {
	Timestamp int64   `json:"timestamp"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
}

// UploadRequest is the body of POST /data on the aggregation server.
type UploadRequest struct {
	PatientID string   `json:"patientId"`
	SessionID int64    `json:"sessionId"`
	Data      []Sample `json:"data"`
}

// SensorDataPath returns the transport path for the batch with the given
// sequence number, e.g. "/sensor_data/42".
func SensorDataPath(seq uint64) string {
	return SensorDataPrefix + "/" + strconv.FormatUint(seq, 10)
}

// BatteryPath returns the transport path for the battery reading with the
// given sequence number.
func BatteryPath(seq uint64) string {
	return BatteryPrefix + "/" + strconv.FormatUint(seq, 10)
}

// IsSensorDataPath reports whether path carries a sample batch.
func IsSensorDataPath(path string) bool {
	return strings.HasPrefix(path, SensorDataPrefix)
}

// IsBatteryPath reports whether path carries a battery reading.
func IsBatteryPath(path string) bool {
	return strings.HasPrefix(path, BatteryPrefix)
}

// IsDevicePath reports whether path carries a device identity announcement.
func IsDevicePath(path string) bool {
	return path == DevicePath
}

// EncodeSamples serializes a batch payload: a JSON array of samples.
func EncodeSamples(samples []Sample) ([]byte, error) {
	return json.Marshal(samples)
}

// DecodeSamples parses a batch payload. An empty array is valid; anything
// that is not a JSON array of sample objects is a serialization error and
// the payload cannot be reconstructed.
func DecodeSamples(payload []byte) ([]Sample, error) {
	var samples []Sample
	if err := json.Unmarshal(payload, &samples); err != nil {
		return nil, fmt.Errorf("decode sample batch: %w", err)
	}
	return samples, nil
}

// deviceHello is the identity announcement the wearable sends once per run.
type deviceHello struct {
	DeviceID string `json:"deviceId"`
}

// EncodeDevice serializes a device identity announcement.
func EncodeDevice(deviceID string) ([]byte, error) {
	return json.Marshal(deviceHello{DeviceID: deviceID})
}

// DecodeDevice parses a device identity announcement.
func DecodeDevice(payload []byte) (string, error) {
	var h deviceHello
	if err := json.Unmarshal(payload, &h); err != nil {
		return "", fmt.Errorf("decode device announcement: %w", err)
	}
	if h.DeviceID == "" {
		return "", fmt.Errorf("device announcement without deviceId")
	}
	return h.DeviceID, nil
}

// batteryReading is the battery payload shape on the transport.
type batteryReading struct {
	Level int `json:"level"`
}

// EncodeBattery serializes a battery percentage payload.
func EncodeBattery(level int) ([]byte, error) {
	return json.Marshal(batteryReading{Level: level})
}

// DecodeBattery parses a battery payload and validates the range.
func DecodeBattery(payload []byte) (int, error) {
	var r batteryReading
	if err := json.Unmarshal(payload, &r); err != nil {
		return 0, fmt.Errorf("decode battery reading: %w", err)
	}
	if r.Level < 0 || r.Level > 100 {
		return 0, fmt.Errorf("battery level %d out of range", r.Level)
	}
	return r.Level, nil
}
