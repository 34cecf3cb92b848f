package cliapp

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// CloneableGeneric is a cli.Generic value that can be copied, so flag definitions can be reused.
type CloneableGeneric interface {
	cli.Generic
	Clone() any
}

// ProtectFlags ensures that no flags are safe to Apply() flag sets to without accidental flag-value mutation.
// ProtectFlags panics if any of the flags are not supported.
func ProtectFlags(flags []cli.Flag) []cli.Flag {
	out := make([]cli.Flag, 0, len(flags))
	for _, f := range flags {
		fCopy, err := cloneFlag(f)
		if err != nil {
			panic(fmt.Errorf("failed to clone flag %q: %w", f.Names()[0], err))
		}
		out = append(out, fCopy)
	}
	return out
}

func cloneFlag(f cli.Flag) (cli.Flag, error) {
	switch typedFlag := f.(type) {
	case *cli.GenericFlag:
		// We have to clone Value, since it's an interface pointer
		cpy := *typedFlag
		cloneable, ok := typedFlag.Value.(CloneableGeneric)
		if !ok {
			return nil, fmt.Errorf("flag %q value %T is not cloneable", typedFlag.Name, typedFlag.Value)
		}
		cpy.Value = cloneable.Clone().(cli.Generic)
		return &cpy, nil
	case *cli.StringFlag:
		cpy := *typedFlag
		return &cpy, nil
	case *cli.BoolFlag:
		cpy := *typedFlag
		return &cpy, nil
	case *cli.IntFlag:
		cpy := *typedFlag
		return &cpy, nil
	case *cli.Uint64Flag:
		cpy := *typedFlag
		return &cpy, nil
	case *cli.Float64Flag:
		cpy := *typedFlag
		return &cpy, nil
	case *cli.DurationFlag:
		cpy := *typedFlag
		return &cpy, nil
	case *cli.PathFlag:
		cpy := *typedFlag
		return &cpy, nil
	default:
		return nil, fmt.Errorf("unsupported flag type %T", f)
	}
}
