// Package capture is the packet source component (C1): it owns the
// capture backend (kernel-filter vs. user-mode pcap) and delivers raw,
// undecoded link-layer frames to the flow identifier over a bounded
// channel. It does no IP/TCP parsing itself — that is flowid's job.
package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	"go.uber.org/zap"
)

// Backend selects which of the two packet-source variants to open.
// Both ultimately run on gopacket/pcap (libpcap/Npcap under the hood);
// the distinction is in which options are applied, not in separate
// drivers, since gopacket's pcap binding is the only capture library
// present in the retrieval pack for either OS.
type Backend string

const (
	// BackendKernelFilter is the default: capture on the configured device
	// (or, when none is set, the first non-loopback device with an
	// address) with a BPF filter equivalent to "not loopback and ip and
	// tcp" applied in the kernel.
	BackendKernelFilter Backend = "KernelFilter"
	// BackendUserMode binds to a specific named device, snaplen 65536,
	// promiscuous, 1s read timeout, and installs no BPF filter; Open does
	// no loopback or protocol filtering of its own.
	BackendUserMode Backend = "UserMode"
)

const (
	snapLen         = 65536
	promiscuous     = true
	readTimeout     = 1000 * time.Millisecond
	channelCap      = 1024
	kernelFilterBPF = "not (net 127.0.0.0/8 or net ::1) and ip and tcp"
)

// DefaultListenAddr is the command-surface HTTP/WS bind address used when
// the config file omits listen_addr.
const DefaultListenAddr = ":7777"

// DefaultEventUpdateRateMs is the snapshot feed's throttle interval used
// when the config file omits event_update_rate_ms.
const DefaultEventUpdateRateMs = 150

// Config is the on-disk capture configuration: a small JSON file under
// the OS-appropriate per-user config directory. ListenAddr and
// EventUpdateRateMs additionally configure the command-surface HTTP
// server and its snapshot-feed throttle, since they share one process
// and one config file with the capture backend.
type Config struct {
	Backend           Backend `json:"method"`
	Device            string  `json:"device,omitempty"`
	ListenAddr        string  `json:"listen_addr,omitempty"`
	EventUpdateRateMs int     `json:"event_update_rate_ms,omitempty"`
}

// ConfigPath returns the default location of the capture config file.
func ConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "meterd", "capture.json"), nil
}

// LoadConfig reads the capture config from path, defaulting to
// BackendKernelFilter with no device pinned when the file is absent.
func LoadConfig(path string) (Config, error) {
	cfg := Config{Backend: BackendKernelFilter, ListenAddr: DefaultListenAddr, EventUpdateRateMs: DefaultEventUpdateRateMs}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("capture: parsing %s: %w", path, err)
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendKernelFilter
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.EventUpdateRateMs == 0 {
		cfg.EventUpdateRateMs = DefaultEventUpdateRateMs
	}
	return cfg, nil
}

// Frame is one captured link-layer frame, undecoded.
type Frame struct {
	Data     []byte
	LinkType gopacket.LayerType
}

// Source delivers captured frames until Close is called or the backend
// fails irrecoverably, in which case Frames is closed.
type Source interface {
	Frames() <-chan Frame
	Close() error
}

type pcapSource struct {
	handle *pcap.Handle
	out    chan Frame
	log    *zap.Logger
}

// Open starts a capture backend per cfg. A driver-open failure is
// fatal for this worker — there is no capture without a live handle,
// so the error is returned rather than retried.
func Open(cfg Config, log *zap.Logger) (Source, error) {
	device := cfg.Device
	if device == "" {
		if cfg.Backend == BackendUserMode {
			return nil, fmt.Errorf("capture: user-mode backend requires a device")
		}
		dev, err := defaultDevice()
		if err != nil {
			return nil, fmt.Errorf("capture: selecting default device: %w", err)
		}
		device = dev
	}

	handle, err := pcap.OpenLive(device, snapLen, promiscuous, readTimeout)
	if err != nil {
		return nil, fmt.Errorf("capture: opening %s: %w", device, err)
	}

	if cfg.Backend == BackendKernelFilter {
		if err := handle.SetBPFFilter(kernelFilterBPF); err != nil {
			handle.Close()
			return nil, fmt.Errorf("capture: setting BPF filter: %w", err)
		}
	}

	s := &pcapSource{handle: handle, out: make(chan Frame, channelCap), log: log}
	go s.loop()
	return s, nil
}

func defaultDevice() (string, error) {
	devices, err := pcap.FindAllDevs()
	if err != nil {
		return "", err
	}
	for _, d := range devices {
		isLoopback := d.Flags&pcap.PCAP_IF_LOOPBACK != 0
		if !isLoopback && len(d.Addresses) > 0 {
			return d.Name, nil
		}
	}
	if len(devices) > 0 {
		return devices[0].Name, nil
	}
	return "", fmt.Errorf("no capture devices found")
}

func (s *pcapSource) loop() {
	defer close(s.out)
	linkType := s.handle.LinkType()
	for {
		data, _, err := s.handle.ZeroCopyReadPacketData()
		if err != nil {
			if err == pcap.NextErrorTimeoutExpired {
				continue
			}
			s.log.Warn("capture read error, stopping", zap.Error(err))
			return
		}
		frame := Frame{Data: append([]byte(nil), data...), LinkType: linkType}
		select {
		case s.out <- frame:
		default:
			s.log.Warn("capture channel full, dropping frame")
		}
	}
}

func (s *pcapSource) Frames() <-chan Frame {
	return s.out
}

func (s *pcapSource) Close() error {
	s.handle.Close()
	return nil
}
