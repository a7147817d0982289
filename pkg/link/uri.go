package link

import (
	"fmt"
	"go.bug.st/serial"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const (
	SchemeTCP    = "tcp"
	SchemeSerial = "serial"
)

var StringToParity = map[string]serial.Parity{
	"none":  serial.NoParity,
	"odd":   serial.OddParity,
	"even":  serial.EvenParity,
	"mark":  serial.MarkParity,
	"space": serial.SpaceParity,
}

var StringToStopBits = map[string]serial.StopBits{
	"1":   serial.OneStopBit,
	"1.5": serial.OnePointFiveStopBits,
	"2":   serial.TwoStopBits,
}

// Address is a parsed transport uri.
//
//	tcp://host:port
//	host:port
//	serial:///dev/ttyUSB0?baudrate=9600&parity=none&bytesize=8&stopbits=1
type Address struct {
	Scheme   string
	Location string
	Mode     *serial.Mode
}

func (a *Address) String() string {
	return a.Scheme + "://" + a.Location
}

func ParseURI(uri string) (*Address, error) {
	if !strings.Contains(uri, "://") {
		uri = SchemeTCP + "://" + uri
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid uri %q: %v", uri, err)
	}

	switch u.Scheme {
	case SchemeTCP:
		if _, _, err := net.SplitHostPort(u.Host); err != nil {
			return nil, fmt.Errorf("invalid tcp address %q: %v", u.Host, err)
		}
		return &Address{Scheme: SchemeTCP, Location: u.Host}, nil
	case SchemeSerial:
		location := u.Host + u.Path
		if len(location) == 0 {
			return nil, fmt.Errorf("missing serial device in %q", uri)
		}
		mode, err := parseSerialMode(u.Query())
		if err != nil {
			return nil, err
		}
		return &Address{Scheme: SchemeSerial, Location: location, Mode: mode}, nil
	default:
		return nil, fmt.Errorf("unsupported uri scheme %q", u.Scheme)
	}
}

func parseSerialMode(q url.Values) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	for key, values := range q {
		v := values[0]
		switch key {
		case "baudrate":
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid baudrate %q", v)
			}
			mode.BaudRate = n
		case "bytesize":
			n, err := strconv.Atoi(v)
			if err != nil || n < 5 || n > 8 {
				return nil, fmt.Errorf("invalid bytesize %q", v)
			}
			mode.DataBits = n
		case "parity":
			p, ok := StringToParity[strings.ToLower(v)]
			if !ok {
				return nil, fmt.Errorf("invalid parity %q", v)
			}
			mode.Parity = p
		case "stopbits":
			s, ok := StringToStopBits[v]
			if !ok {
				return nil, fmt.Errorf("invalid stopbits %q", v)
			}
			mode.StopBits = s
		default:
			return nil, fmt.Errorf("unknown serial option %q", key)
		}
	}
	return mode, nil
}
