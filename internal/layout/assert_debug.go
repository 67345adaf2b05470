//go:build calgrid_debug

package layout

func invariantViolated(err error) {
	panic(err)
}
