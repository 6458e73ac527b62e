package main

import (
	"context"
	"fmt"
	"time"
)

type SendCommand struct {
	connectionFlags
	Delay time.Duration `long:"delay" default:"100ms" description:"Pause between tokens"`

	Args struct {
		Tokens []string `positional-arg-name:"TOKEN" required:"1" description:"Command tokens, e.g. 0135 S270 SPD:50 L"`
	} `positional-args:"yes"`
}

func (c *SendCommand) Execute(args []string) error {
	ctrl, log, err := c.session(false)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer ctrl.Close()

	ctx := context.Background()
	if err := ctrl.Connect(ctx, ""); err != nil {
		return err
	}

	for i, tok := range c.Args.Tokens {
		if i > 0 && c.Delay > 0 {
			time.Sleep(c.Delay)
		}
		if err := ctrl.Raw(ctx, tok); err != nil {
			return err
		}
		fmt.Println(dimStyle.Render("→ ") + tok)
	}
	return nil
}
