// Package system provides the System and Zone views over an attribute
// registry and builds outbound commands.
//
// A System owns one attribute.Registry. Populate maps each polled status
// document into it, either through the schema catalog (declared paths,
// coerced kinds) or by flattening every leaf. Zone views are positional,
// always present, and look their fields up in the registry by path.
//
// Commands are built from mutable attributes only and are sent through a
// CommandSender:
//
//	cmd, err := sys.BuildZoneCommand(2, "cool_setpoint", 23)
//	if err != nil {
//	    return err
//	}
//	err = sys.Send(ctx, cmd)
package system
