package main

import (
	fxmodules "github.com/mcdev12/beatmeat/go/internal/fx"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.NopLogger,
		fx.Invoke(runServer),
	).Run()
}
