package smp

import "fmt"

// mgmtErrnoNames maps MCUmgr's own MGMT_ERR_* return codes, the values
// carried in an SMP response's error envelope `rc` field, to their
// symbolic names. This is a distinct numbering space from POSIX errno: for
// example rc=8 here is ENOTSUP, the code CommandNotSupported checks for,
// unrelated to POSIX errno 8 (ENOEXEC).
var mgmtErrnoNames = map[int32]string{
	0:  "EOK",
	1:  "EUNKNOWN",
	2:  "ENOMEM",
	3:  "EINVAL",
	4:  "ETIMEOUT",
	5:  "ENOENT",
	6:  "EBADSTATE",
	7:  "EMSGSIZE",
	8:  "ENOTSUP",
	9:  "ECORRUPT",
	10: "EBUSY",
	11: "EACCESSDENIED",
	12: "EUNSUPPORTED_TOO_OLD",
	13: "EUNSUPPORTED_TOO_NEW",
}

// mgmtErrName formats an SMP response's `rc` field as its symbolic
// MGMT_ERR_* name, or "EUNKNOWN(n)" for codes this dictionary doesn't
// recognize. Zero and negative values are reported as "EOK"; a negative v1
// rc, or a v2 rc of zero, still reaches here as a DeviceError.
func mgmtErrName(rc int32) string {
	if rc <= 0 {
		return "EOK"
	}
	if name, ok := mgmtErrnoNames[rc]; ok {
		return name
	}
	return fmt.Sprintf("EUNKNOWN(%d)", rc)
}

// posixErrnoNames maps Zephyr's minimal libc errno.h values to their
// symbolic names. This is the table a device's shell uses when it reports a
// command's exit status as a negated errno — a different numbering space
// from mgmtErrnoNames above, not unified with it.
var posixErrnoNames = map[int32]string{
	1:   "EPERM",
	2:   "ENOENT",
	3:   "ESRCH",
	4:   "EINTR",
	5:   "EIO",
	6:   "ENXIO",
	7:   "E2BIG",
	8:   "ENOEXEC",
	9:   "EBADF",
	10:  "ECHILD",
	11:  "EAGAIN",
	12:  "ENOMEM",
	13:  "EACCES",
	14:  "EFAULT",
	15:  "ENOTBLK",
	16:  "EBUSY",
	17:  "EEXIST",
	18:  "EXDEV",
	19:  "ENODEV",
	20:  "ENOTDIR",
	21:  "EISDIR",
	22:  "EINVAL",
	23:  "ENFILE",
	24:  "EMFILE",
	25:  "ENOTTY",
	26:  "ETXTBSY",
	27:  "EFBIG",
	28:  "ENOSPC",
	29:  "ESPIPE",
	30:  "EROFS",
	31:  "EMLINK",
	32:  "EPIPE",
	33:  "EDOM",
	34:  "ERANGE",
	35:  "ENOMSG",
	45:  "EDEADLK",
	46:  "ENOLCK",
	60:  "ENOSTR",
	61:  "ENODATA",
	62:  "ETIME",
	63:  "ENOSR",
	71:  "EPROTO",
	77:  "EBADMSG",
	88:  "ENOSYS",
	90:  "ENOTEMPTY",
	91:  "ENAMETOOLONG",
	92:  "ELOOP",
	95:  "EOPNOTSUPP",
	96:  "EPFNOSUPPORT",
	104: "ECONNRESET",
	105: "ENOBUFS",
	106: "EAFNOSUPPORT",
	107: "EPROTOTYPE",
	108: "ENOTSOCK",
	109: "ENOPROTOOPT",
	110: "ESHUTDOWN",
	111: "ECONNREFUSED",
	112: "EADDRINUSE",
	113: "ECONNABORTED",
	114: "ENETUNREACH",
	115: "ENETDOWN",
	116: "ETIMEDOUT",
	117: "EHOSTDOWN",
	118: "EHOSTUNREACH",
	119: "EINPROGRESS",
	120: "EALREADY",
	121: "EDESTADDRREQ",
	122: "EMSGSIZE",
	123: "EPROTONOSUPPORT",
	124: "ESOCKTNOSUPPORT",
	125: "EADDRNOTAVAIL",
	126: "ENETRESET",
	127: "EISCONN",
	128: "ENOTCONN",
	129: "ETOOMANYREFS",
	134: "ENOTSUP",
	138: "EILSEQ",
	139: "EOVERFLOW",
	140: "ECANCELED",
}

// shellExitCodeErrno formats a shell command's raw exit code, which the
// device reports as a negated POSIX errno rather than through the MGMT
// error envelope, using posixErrnoNames rather than mgmtErrnoNames. The two
// tables describe different wire encodings and are not unified.
func shellExitCodeErrno(exitCode int32) string {
	if exitCode >= 0 {
		return "EOK"
	}
	if name, ok := posixErrnoNames[-exitCode]; ok {
		return name
	}
	return fmt.Sprintf("EUNKNOWN(%d)", exitCode)
}
