package fdi

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RunConfig controls one end-to-end run
type RunConfig struct {
	// Record read from every device, I&M0 in DefaultRunConfig
	Slot    uint16
	Subslot uint16
	Index   uint16
	API     uint32

	// CallRate limits remote calls per second; zero means unlimited
	CallRate float64

	// DecodeIM0 prints a decoded summary after the raw dump of an I&M0 read
	DecodeIM0 bool
}

// DefaultRunConfig reads I&M0 without pacing
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Slot:    IM0Slot,
		Subslot: IM0Subslot,
		Index:   IM0Index,
		API:     IM0API,
	}
}

// Runner drives the Initialize, Scan and per-device Connect/Transfer/Disconnect sequence
type Runner struct {
	cfg RunConfig
	out io.Writer
	log logrus.FieldLogger
}

// NewRunner creates a runner printing to out. A nil out writes to stdout.
func NewRunner(cfg RunConfig, out io.Writer, log logrus.FieldLogger) *Runner {
	if out == nil {
		out = os.Stdout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{cfg: cfg, out: out, log: log}
}

func (r *Runner) limiter() *rate.Limiter {
	if r.cfg.CallRate <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(r.cfg.CallRate), 1)
}

// Run executes the sequence on an open connection. Nonzero service statuses
// of Initialize and Scan end the run without error; transport failures abort
// it and are returned.
func (r *Runner) Run(ctx context.Context, conn Conn) error {
	nodes, err := ResolveServiceNodes(ctx, conn)
	if err != nil {
		return err
	}

	client := NewClient(conn, nodes, r.log, r.limiter())

	resInitialize, err := client.Initialize(ctx)
	if err != nil {
		return err
	}
	r.log.Infof("Initialize result is: %d", resInitialize)
	if !resInitialize.OK() {
		return nil
	}

	scan, err := client.Scan(ctx)
	if err != nil {
		return err
	}
	r.log.Infof("Scan result is: %d", scan.Status)
	if !scan.Status.OK() {
		return nil
	}

	devices, err := ParseScanResult([]byte(scan.Document))
	if err != nil {
		var defects ScanErrors
		if !errors.As(err, &defects) {
			return err
		}
		for _, d := range defects {
			r.log.Warnf("Skipping device: %v", d)
		}
	}
	r.log.Debugf("Scan found %d devices", len(devices))

	for _, dev := range devices {
		if err := r.processDevice(ctx, client, dev); err != nil {
			return err
		}
	}
	return nil
}

// processDevice connects, reads one record and disconnects. The statuses of
// the three calls are logged but do not gate the following call.
func (r *Runner) processDevice(ctx context.Context, client *Client, dev DeviceRecord) error {
	PrintDevice(r.out, dev)
	crID := ConnectionReference(dev.Name)

	resConnect, err := client.Connect(ctx, crID, dev)
	if err != nil {
		return err
	}
	r.log.Infof("Connect result is: %d", resConnect)

	req := TransferRequest{
		CRID:      crID,
		Operation: OperationRead,
		Slot:      r.cfg.Slot,
		Subslot:   r.cfg.Subslot,
		Index:     r.cfg.Index,
		API:       r.cfg.API,
	}
	read, err := client.Transfer(ctx, req)
	if err != nil {
		return err
	}
	r.log.Infof("Read result is: %d", read.Status)
	r.log.Infof("Read return codes: %s", formatCodes(read.ResultCodes))
	r.log.Debugf("Read data of %s:\n%s", dev.Name, HexDump(read.Data))
	PrintReadData(r.out, read.Data)

	if r.cfg.DecodeIM0 && req.Index == IM0Index {
		if im, err := DecodeIM0(read.Data); err != nil {
			r.log.Warnf("Cannot decode I&M0 of %s: %v", dev.Name, err)
		} else {
			im.Print(r.out)
		}
	}

	resDisconnect, err := client.Disconnect(ctx, crID)
	if err != nil {
		return err
	}
	r.log.Infof("Disconnect result is: %d", resDisconnect)
	return nil
}

// formatCodes renders result codes as a comma separated list, e.g. "[0, -1]"
func formatCodes(codes []int32) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = strconv.FormatInt(int64(c), 10)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
