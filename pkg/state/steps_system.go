package state

import (
	"context"
	"fmt"

	cnst "github.com/pinebook-tools/pbpinstall/internal/constants"
	internalUtils "github.com/pinebook-tools/pbpinstall/internal/utils"
	"github.com/pinebook-tools/pbpinstall/pkg/op"
	"github.com/pinebook-tools/pbpinstall/pkg/render"
	"github.com/spectrocloud-labs/herd"
)

// InstallPackagesDagStep bootstraps the package list into the target root.
func (s *State) InstallPackagesDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpInstallPackages, append(opts, herd.WithCallback(s.step(cnst.OpInstallPackages, func(ctx context.Context) error {
		return s.run(ctx, "pacstrap", append([]string{s.Config.Mountpoint}, s.Config.Packages...)...)
	})))...)
}

// ConfigureSystemDagStep sets machine-id, timezone, locale, keymap and hostname
// with systemd-firstboot.
func (s *State) ConfigureSystemDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpConfigureSystem, append(opts, herd.WithCallback(s.step(cnst.OpConfigureSystem, func(ctx context.Context) error {
		sys := s.Config.System
		machineID, err := internalUtils.MachineID()
		if err != nil {
			return err
		}
		tz := s.timezone(ctx)
		return s.run(ctx, "systemd-firstboot",
			"--root="+s.Config.Mountpoint,
			"--force",
			"--machine-id="+machineID,
			"--timezone="+tz,
			"--locale="+sys.Locale,
			"--keymap="+sys.Keymap,
			"--hostname="+sys.Hostname,
		)
	})))...)
}

// timezone resolves "auto" through the geolocation endpoint, falling back to UTC.
func (s *State) timezone(ctx context.Context) string {
	sys := s.Config.System
	if sys.Timezone != "" && sys.Timezone != cnst.TimezoneAutoDetect {
		return sys.Timezone
	}
	tz, err := s.DetectTimezone(ctx, sys.TimezoneURL)
	if err != nil {
		internalUtils.Log.Warn().Err(err).Str("url", sys.TimezoneURL).Msg("Could not detect timezone, using UTC")
		return "UTC"
	}
	internalUtils.Log.Info().Str("timezone", tz).Msg("Detected timezone")
	return tz
}

func (s *State) GenerateLocaleDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpGenerateLocale, append(opts, herd.WithCallback(s.step(cnst.OpGenerateLocale, func(ctx context.Context) error {
		if err := render.WriteFile(s.FS, s.target("/etc/locale.gen"), render.LocaleGen(s.Config.System.Locale), 0o644); err != nil {
			return err
		}
		_, err := s.System.Run(ctx, op.Cmd("locale-gen").InChroot(s.Config.Mountpoint))
		return err
	})))...)
}

// SetRootPasswordDagStep feeds the password to chpasswd inside the target so
// it never shows up in a command line.
func (s *State) SetRootPasswordDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpSetRootPassword, append(opts, herd.WithCallback(s.step(cnst.OpSetRootPassword, func(ctx context.Context) error {
		pw := s.Config.System.RootPassword
		if pw == "" {
			internalUtils.Log.Warn().Msg("No root password configured, root login stays locked")
			return nil
		}
		_, err := s.System.Run(ctx, op.Cmd("chpasswd").InChroot(s.Config.Mountpoint).WithStdin(fmt.Sprintf("root:%s\n", pw)))
		return err
	})))...)
}

func (s *State) WriteHostsDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpWriteHosts, append(opts, herd.WithCallback(s.step(cnst.OpWriteHosts, func(_ context.Context) error {
		return render.WriteFile(s.FS, s.target("/etc/hosts"), render.Hosts(s.Config.System.Hostname), 0o644)
	})))...)
}

func (s *State) WriteMkinitcpioDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpWriteMkinitcpio, append(opts, herd.WithCallback(s.step(cnst.OpWriteMkinitcpio, func(_ context.Context) error {
		return render.WriteFile(s.FS, s.target(cnst.MkinitcpioConfPath), render.Mkinitcpio(s.Config.Initramfs), 0o644)
	})))...)
}

// BuildInitramfsDagStep regenerates every preset inside the target root.
func (s *State) BuildInitramfsDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpBuildInitramfs, append(opts, herd.WithCallback(s.step(cnst.OpBuildInitramfs, func(ctx context.Context) error {
		_, err := s.System.Run(ctx, op.Cmd("mkinitcpio", "-P").InChroot(s.Config.Mountpoint))
		return err
	})))...)
}
