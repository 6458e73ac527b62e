package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/gwillem/armpanel/pkg/control"
)

type MonitorCommand struct {
	connectionFlags
	Duration time.Duration `short:"d" long:"duration" description:"Stop after this long (default: until interrupted)"`
	Changes  bool          `long:"changes" description:"Only print statuses that change a readout"`
}

func (c *MonitorCommand) Execute(args []string) error {
	ctrl, log, err := c.session(false)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer ctrl.Close()
	defer printMetrics(ctrl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if c.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Duration)
		defer cancel()
	}

	if err := ctrl.Connect(ctx, ""); err != nil {
		return err
	}
	fmt.Println(dimStyle.Render(fmt.Sprintf("Monitoring %s, Ctrl+C to stop", ctrl.Port())))

	for {
		select {
		case <-ctx.Done():
			return nil
		case st := <-ctrl.Statuses():
			changed := ctrl.Apply(st)
			if c.Changes && len(changed) == 0 {
				continue
			}
			fmt.Printf("%s %s\n", dimStyle.Render(time.Now().Format("15:04:05.000")), st)
		case ev := <-ctrl.Events():
			if ev.Kind == control.EventDisconnected {
				if ev.Err != nil {
					return ev.Err
				}
				return nil
			}
		}
	}
}

// printMetrics reports link traffic once monitoring ends.
func printMetrics(ctrl *control.Controller) {
	if snap, ok := ctrl.Metrics(); ok {
		fmt.Println(dimStyle.Render("Link: " + snap.String()))
	}
}
