package try

// something having method `Fatal`.
//
// Standard library examples: *testing.T, log.Logger
type Fataler interface {
	Fatal(...any)
}

// Wrapper of a pair (T, error).
//
// When error is nil, the Either is "ok" and the T value is valid.
// Otherwise it is "no good" and the T value must not be used.
type Either[T any] interface {

	// get the value & error pair back.
	Get() (T, error)

	// When the Either is "ok", return the T value.
	//
	// Otherwise call ftl.Fatal(err).
	// If ftl has a "Helper()" method (like *testing.T), that is called first.
	OrFatal(ftl Fataler) T

	// When the Either is "ok", return the T value. Otherwise, the default.
	OrDefault(T) T
}

func To[T any](ok T, ng error) Either[T] {
	if ng == nil {
		return tryOk[T]{ok}
	}
	return tryNg[T]{ng}
}

type tryOk[T any] struct {
	value T
}

type tryNg[T any] struct {
	err error
}

func (ok tryOk[T]) Get() (T, error) {
	return ok.value, nil
}

func (ng tryNg[T]) Get() (T, error) {
	return *new(T), ng.err
}

func (ok tryOk[T]) OrDefault(T) T {
	return ok.value
}

func (ng tryNg[T]) OrDefault(d T) T {
	return d
}

func (ok tryOk[T]) OrFatal(Fataler) T {
	return ok.value
}

func (ng tryNg[T]) OrFatal(ftl Fataler) T {
	if hlp, ok := ftl.(interface{ Helper() }); ok {
		hlp.Helper() // think *testing.T
	}
	ftl.Fatal(ng.err)

	return *new(T)
}
