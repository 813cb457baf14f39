// Package render produces the configuration files written into the target root.
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pinebook-tools/pbpinstall/pkg/schema"
	"github.com/twpayne/go-vfs/v4"
)

// Crypttab is the /etc/crypttab line unlocking the root volume with the key file.
func Crypttab(mapper, device, keyFile string) string {
	return fmt.Sprintf("%s\t%s\t%s\tluks\n", mapper, device, keyFile)
}

func Fstab(entries schema.FsTabs) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.String())
		b.WriteString("\n")
	}
	return b.String()
}

// Mkinitcpio renders mkinitcpio.conf. Every variable appears exactly once.
func Mkinitcpio(i schema.Initramfs) string {
	return fmt.Sprintf("MODULES=(%s)\nBINARIES=()\nFILES=()\nHOOKS=(%s)\nCOMPRESSION=\"%s\"\n",
		strings.Join(i.Modules, " "),
		strings.Join(i.Hooks, " "),
		i.Compression,
	)
}

// Extlinux renders the u-boot extlinux.conf with a single entry.
func Extlinux(e schema.Extlinux, cmdline []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "DEFAULT %s\n", e.Label)
	b.WriteString("MENU TITLE Boot Menu\n")
	fmt.Fprintf(&b, "LABEL %s\n", e.Label)
	fmt.Fprintf(&b, "    KERNEL %s\n", e.Kernel)
	fmt.Fprintf(&b, "    FDT %s\n", e.FDT)
	if e.Initrd != "" {
		fmt.Fprintf(&b, "    INITRD %s\n", e.Initrd)
	}
	fmt.Fprintf(&b, "    APPEND %s\n", strings.Join(cmdline, " "))
	return b.String()
}

func Hosts(hostname string) string {
	return fmt.Sprintf("127.0.0.1\tlocalhost\n::1\t\tlocalhost\n127.0.1.1\t%s.localdomain\t%s\n", hostname, hostname)
}

// LocaleGen is the locale.gen line for a locale such as en_US.UTF-8.
func LocaleGen(locale string) string {
	charset := "ISO-8859-1"
	if i := strings.LastIndex(locale, "."); i >= 0 {
		charset = locale[i+1:]
	}
	return fmt.Sprintf("%s %s\n", locale, charset)
}

// WriteFile writes content to path, creating its parent dirs first.
func WriteFile(fs vfs.FS, path, content string, perm os.FileMode) error {
	if err := vfs.MkdirAll(fs, filepath.Dir(path), 0755); err != nil {
		return err
	}
	return fs.WriteFile(path, []byte(content), perm)
}
