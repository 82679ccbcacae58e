package main

import (
	"go.uber.org/fx"

	"github.com/debulol/dota2-inhouse/internal/app"
)

func main() {
	fx.New(
		app.Module,
		fx.Invoke(app.Run),
	).Run()
}
