package cmd

import "go.uber.org/fx"

var Module = fx.Module("cli",
	fx.Provide(
		fx.Annotate(install, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(uninstall, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(status, fx.ResultTags(`group:"commands"`)),
	),
	fx.Invoke(Run),
)
