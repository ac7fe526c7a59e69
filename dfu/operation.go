package dfu

import (
	"context"
	"sync"
	"time"

	"github.com/moffa90/go-nrfdfu/nrfpkg"
)

// Operation sends every update of a package, in order, through one
// Transport.
type Operation struct {
	pkg      *nrfpkg.Package
	transfer *Transfer
	config   Config

	index int

	once sync.Once
	err  error
}

// NewOperation creates an Operation for pkg over t.
//
// Example:
//
//	pkg, _ := nrfpkg.Parse("app_dfu_package.zip")
//	op := dfu.NewOperation(pkg, transport, dfu.WithLogger(logger))
//	if err := op.Start(ctx, false); err != nil {
//	    var ue *dfu.UpdateError
//	    if errors.As(err, &ue) {
//	        log.Printf("update %d failed", ue.Index)
//	    }
//	}
func NewOperation(pkg *nrfpkg.Package, t Transport, opts ...Option) *Operation {
	if pkg == nil {
		panic("package cannot be nil")
	}

	op := &Operation{pkg: pkg, config: newConfig(opts)}

	cfg := op.config
	if cfg.ProgressCallback != nil {
		cfg.ProgressCallback = op.forwardProgress
	}
	op.transfer = NewTransfer(t)
	op.transfer.config = cfg

	return op
}

// Start sends all updates. If forceful is set, each update first discards
// whatever resumable state the device holds.
//
// Start runs once. Later and concurrent calls wait for the first one and
// return its result. A failure is an *UpdateError naming the update.
func (o *Operation) Start(ctx context.Context, forceful bool) error {
	o.once.Do(func() {
		o.err = o.run(ctx, forceful)
	})
	return o.err
}

func (o *Operation) run(ctx context.Context, forceful bool) error {
	startTime := time.Now()

	for i, u := range o.pkg.Updates {
		o.index = i

		o.config.logInfo("sending update",
			"index", i,
			"name", u.Name,
			"init_packet_bytes", len(u.InitPacket),
			"firmware_bytes", len(u.FirmwareImage),
		)

		if err := o.send(ctx, u, forceful); err != nil {
			o.config.logError("update failed", "index", i, "name", u.Name, "error", err)
			return &UpdateError{Index: i, Name: u.Name, Err: err}
		}
	}

	o.config.logInfo("all updates sent",
		"updates", len(o.pkg.Updates),
		"elapsed", time.Since(startTime).String(),
	)
	return nil
}

func (o *Operation) send(ctx context.Context, u nrfpkg.Update, forceful bool) error {
	if forceful {
		if err := o.transfer.Restart(ctx); err != nil {
			return err
		}
	}
	if err := o.transfer.SendInitPacket(ctx, u.InitPacket); err != nil {
		return err
	}
	return o.transfer.SendFirmwareImage(ctx, u.FirmwareImage)
}

// forwardProgress adds the update position to transfer progress.
func (o *Operation) forwardProgress(p Progress) {
	p.UpdateIndex = o.index
	p.UpdateCount = len(o.pkg.Updates)
	p.UpdateName = o.pkg.Updates[o.index].Name
	o.config.reportProgress(p)
}
