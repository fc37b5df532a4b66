package receipt

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// ErrPrinterUnavailable indicates the print bridge could not be reached.
// Callers must surface it distinctly from payment failures: the sale is
// already persisted by the time printing is attempted.
var ErrPrinterUnavailable = errors.New("printer unavailable")

// Printer sends raw ESC/POS data to a thermal printer.
type Printer interface {
	Print(data []byte) error
	IsConnected() bool
	Close() error
}

type networkPrinter struct {
	address string
	timeout time.Duration
}

// NewNetworkPrinter creates a printer that connects over TCP, typically
// port 9100 ("192.168.1.50:9100").
func NewNetworkPrinter(address string) Printer {
	return &networkPrinter{address: address, timeout: 5 * time.Second}
}

func (p *networkPrinter) Print(data []byte) error {
	conn, err := net.DialTimeout("tcp", p.address, p.timeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", p.address, ErrPrinterUnavailable)
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write to %s: %w", p.address, err)
	}
	return nil
}

func (p *networkPrinter) Close() error { return nil }

func (p *networkPrinter) IsConnected() bool {
	conn, err := net.DialTimeout("tcp", p.address, 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

type usbPrinter struct {
	path string
}

// NewUSBPrinter creates a printer that writes to a device file such as
// /dev/usb/lp0.
func NewUSBPrinter(devicePath string) Printer {
	return &usbPrinter{path: devicePath}
}

func (p *usbPrinter) Print(data []byte) error {
	f, err := os.OpenFile(p.path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", p.path, ErrPrinterUnavailable)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write to %s: %w", p.path, err)
	}
	return nil
}

func (p *usbPrinter) Close() error { return nil }

func (p *usbPrinter) IsConnected() bool {
	_, err := os.Stat(p.path)
	return err == nil
}

type nullPrinter struct{}

// NewNullPrinter creates a no-op printer for environments without hardware.
func NewNullPrinter() Printer { return nullPrinter{} }

func (nullPrinter) Print([]byte) error { return nil }
func (nullPrinter) Close() error       { return nil }
func (nullPrinter) IsConnected() bool  { return false }

// NewPrinterFromConfig creates the appropriate Printer for the configured
// type: "network", "usb", or "none".
func NewPrinterFromConfig(printerType, devicePath, address string) (Printer, error) {
	switch printerType {
	case "network":
		if address == "" {
			return nil, errors.New("printer: address required for network printer")
		}
		return NewNetworkPrinter(address), nil
	case "usb":
		if devicePath == "" {
			return nil, errors.New("printer: device path required for usb printer")
		}
		return NewUSBPrinter(devicePath), nil
	case "none", "":
		return NewNullPrinter(), nil
	default:
		return nil, fmt.Errorf("printer: unknown printer type %q", printerType)
	}
}
