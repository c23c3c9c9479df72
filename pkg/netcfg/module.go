package netcfg

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"pault.ag/go/modprobe"
)

const procModules = "/proc/modules"

func isKernelModuleLoaded(name string) bool {
	file, err := os.Open(procModules)
	if err != nil {
		return false
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		// First field is the module name
		if fields := strings.Fields(scanner.Text()); len(fields) > 0 && fields[0] == name {
			return true
		}
	}

	return false
}

// LoadKernelModule loads kernel module `name` unless it is already present
func LoadKernelModule(name string) (err error) {
	if isKernelModuleLoaded(name) {
		return nil
	}

	// modprobe package may panic when running kernel differs from installed modules,
	// e.g. kernel upgraded but OS not yet rebooted
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("load kernel module %s: %v (an OS reboot may be required)", name, r)
		}
	}()

	if err = modprobe.Load(name, ""); err != nil {
		return fmt.Errorf("load kernel module %s: %w", name, err)
	}
	return nil
}
