package script

import (
	"fmt"

	"github.com/dop251/goja"
)

// dangerousGlobals are host-environment names scripts must not reach. goja
// defines none of them itself, but pinning them to undefined keeps a script
// from being handed an implementation by accident if utilities are ever
// added to the VM.
var dangerousGlobals = []string{
	"require",
	"module",
	"exports",
	"process",
	"global",
	"__dirname",
	"__filename",
	"Buffer",
	"setImmediate",
	"clearImmediate",
	"setTimeout",
	"setInterval",
	"eval",
	"Function",
}

// freezeScript runs before the globals are removed: it severs the
// Function-constructor escape hatch reachable through any object's
// constructor chain, then freezes the core builtins against tampering.
const freezeScript = `(function() {
	'use strict';
	Object.defineProperty(Function.prototype, 'constructor', { value: undefined });
	Object.freeze(Function.prototype);
	var builtins = [Object, Array, String, Number, Boolean, Date, RegExp, Math, JSON];
	for (var i = 0; i < builtins.length; i++) {
		Object.freeze(builtins[i]);
		if (builtins[i].prototype) {
			Object.freeze(builtins[i].prototype);
		}
	}
})();`

// harden locks down a fresh VM for untrusted snippet execution.
func harden(vm *goja.Runtime) error {
	if _, err := vm.RunString(freezeScript); err != nil {
		return fmt.Errorf("freezing builtins: %w", err)
	}
	for _, name := range dangerousGlobals {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return fmt.Errorf("removing global %q: %w", name, err)
		}
	}
	return nil
}
