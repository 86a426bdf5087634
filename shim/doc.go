// Package shim replaces values held in function-typed or interface-typed
// slots with wrappers, and remembers what it replaced.
//
// A slot is any addressable variable or struct field: the Handler of an
// *http.Server, the Transport of an *http.Client, a package-level factory
// variable. Wrap installs the value returned by a wrapper factory in the slot
// exactly once; later calls for the same slot return the existing handle
// instead of stacking another layer. This is what makes repeated
// instrumentation calls safe.
//
// # Usage
//
//	var handler http.Handler = mux
//
//	w, err := shim.Wrap(&handler, "handler", func(next http.Handler) http.Handler {
//	    return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
//	        start := time.Now()
//	        next.ServeHTTP(rw, r)
//	        log.Println(time.Since(start))
//	    })
//	})
//	if err != nil {
//	    // slot left untouched
//	}
//
//	shim.IsWrapped(&handler) // true
//	w.Unwrap()               // handler == mux again
//
// # Concurrency
//
// The registry of wrapped slots is safe for concurrent use. Writing to the
// slot itself is a plain assignment, so wrapping should happen before other
// goroutines start reading the slot (before a server starts serving, before
// a client sends its first request).
//
// # Identity
//
// Unwrap restores the original only while the slot still holds the wrapper it
// installed. Function values are compared by code pointer, so two closures
// created by the same function literal are considered the same wrapper.
package shim
