package smp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

var characteristicSMPUUID, _ = bluetooth.ParseUUID("da2e7828-fbce-4e01-ae9e-261174997c48")

var _ Transport = (*BLETransport)(nil)

// BLETransport implements Transport over a Zephyr SMP Bluetooth LE GATT
// characteristic. Unlike the serial backend, BLE already guarantees framed,
// ordered delivery, so frames are exchanged as raw header+payload bytes with
// no base64/CRC line-framing envelope.
type BLETransport struct {
	adapter *bluetooth.Adapter
	device  bluetooth.Device

	smpCharacteristic bluetooth.DeviceCharacteristic

	cbs   map[uint8]func(frame SMPFrame)
	cbsMu sync.Mutex
}

// NewBLETransport enables the default Bluetooth adapter and returns a
// transport ready to Connect.
func NewBLETransport() (*BLETransport, error) {
	if err := bluetooth.DefaultAdapter.Enable(); err != nil {
		return nil, fmt.Errorf("enable bluetooth adapter: %w", err)
	}

	return &BLETransport{
		adapter: bluetooth.DefaultAdapter,
		cbs:     make(map[uint8]func(frame SMPFrame)),
	}, nil
}

// Connect implements Transport. params recognizes "name" and/or "address"
// to select which advertising device to connect to.
func (b *BLETransport) Connect(ctx context.Context, params url.Values) error {
	name := params.Get("name")
	address := params.Get("address")

	var found bool
	var deviceAddr bluetooth.Address

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	err := b.adapter.Scan(func(a *bluetooth.Adapter, sr bluetooth.ScanResult) {
		slog.Debug("found ble device", "name", sr.LocalName(), "addr", sr.Address)

		nameMatch := name != "" && sr.LocalName() == name
		addrMatch := address != "" && sr.Address.String() == address

		if !nameMatch && !addrMatch {
			return
		}

		deviceAddr = sr.Address
		found = true

		cancel()
		_ = b.adapter.StopScan()
	})
	if err != nil {
		return fmt.Errorf("start ble scan: %w", err)
	}

	slog.Info("started ble scan", "name", name, "address", address)

	<-scanCtx.Done()
	_ = b.adapter.StopScan()

	if !found {
		return errors.New("device could not be found")
	}

	dev, err := b.adapter.Connect(deviceAddr, bluetooth.ConnectionParams{
		ConnectionTimeout: bluetooth.NewDuration(10 * time.Second),
		Timeout:           bluetooth.NewDuration(10 * time.Second),
	})
	if err != nil {
		return fmt.Errorf("connect ble: %w", err)
	}

	b.device = dev

	if err := b.setSMPCharacteristic(); err != nil {
		return fmt.Errorf("discover smp: %w", err)
	}

	if err := b.receiveCallback(); err != nil {
		return fmt.Errorf("set receive callback: %w", err)
	}

	return nil
}

// Close implements Transport.
func (b *BLETransport) Close() error {
	if err := b.device.Disconnect(); err != nil {
		return fmt.Errorf("disconnect ble: %w", err)
	}

	return nil
}

// Send implements Transport. The GATT notification callback (deliverNotification)
// already discards anything arriving for a sequence number nobody is waiting
// on, so unlike the serial backend Send itself never has to loop discarding
// frames; it only needs to validate the one frame that does get routed back
// to it here.
func (b *BLETransport) Send(ctx context.Context, frame SMPFrame) (SMPFrame, error) {
	data := encodeHeaderFrame(frame)

	if _, err := b.smpCharacteristic.WriteWithoutResponse(data); err != nil {
		return SMPFrame{}, fmt.Errorf("write data: %w", err)
	}

	resp, err := b.waitForResp(ctx, frame.Header.SequenceNum)
	if err != nil {
		return SMPFrame{}, err
	}

	if err := validateResponseMatch(frame, resp); err != nil {
		return SMPFrame{}, err
	}

	return resp, nil
}

func (b *BLETransport) setSMPCharacteristic() error {
	services, err := b.device.DiscoverServices([]bluetooth.UUID{bluetooth.ServiceUUIDSMP})
	if err != nil {
		return fmt.Errorf("get services: %w", err)
	}

	if len(services) != 1 {
		return errors.New("got no matching services")
	}

	smpService := services[0]

	chars, err := smpService.DiscoverCharacteristics([]bluetooth.UUID{characteristicSMPUUID})
	if err != nil {
		return fmt.Errorf("get characteristics: %w", err)
	}

	if len(chars) == 0 {
		return errors.New("characteristic not found")
	}

	b.smpCharacteristic = chars[0]

	return nil
}

// deliverNotification decodes a raw notification payload and routes it to
// the callback waiting on its sequence number, if any. Split out from
// receiveCallback so it can be exercised directly by tests without a real
// adapter.
func (b *BLETransport) deliverNotification(buf []byte) {
	frame, err := decodeHeaderFrame(buf)
	if err != nil {
		slog.Error("decode received data", "err", err.Error())
		return
	}

	b.cbsMu.Lock()
	defer b.cbsMu.Unlock()

	seq := frame.Header.SequenceNum
	if cb := b.cbs[seq]; cb != nil {
		delete(b.cbs, seq)
		cb(frame)
	}
}

func (b *BLETransport) receiveCallback() error {
	err := b.smpCharacteristic.EnableNotifications(b.deliverNotification)
	if err != nil {
		return fmt.Errorf("enable characteristic notifications: %w", err)
	}

	return nil
}

func (b *BLETransport) waitForResp(ctx context.Context, seq uint8) (SMPFrame, error) {
	if _, ok := ctx.Deadline(); !ok {
		return SMPFrame{}, errors.New("context must have deadline set for wait")
	}

	resp := make(chan SMPFrame, 1)

	b.cbsMu.Lock()
	b.cbs[seq] = func(frame SMPFrame) {
		resp <- frame
	}
	b.cbsMu.Unlock()

	defer func() {
		b.cbsMu.Lock()
		defer b.cbsMu.Unlock()

		delete(b.cbs, seq)
	}()

	select {
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			return SMPFrame{}, ErrWaitTimeout
		}

		return SMPFrame{}, ctx.Err()
	case frame := <-resp:
		return frame, nil
	}
}
