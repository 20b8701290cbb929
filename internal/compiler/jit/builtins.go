package jit

/*
#include <stdio.h>
#include <string.h>

static double kal_putchard(double x) {
	fputc((char)x, stderr);
	return 0;
}

static unsigned char kal_my_strcmp(const char* a, unsigned char la, const char* b, unsigned char lb) {
	unsigned char n = la < lb ? la : lb;
	int cmp = memcmp(a, b, n);
	if (cmp < 0) return 255;
	if (cmp > 0) return 1;
	if (la < lb) return 255;
	if (la > lb) return 1;
	return 0;
}

static unsigned char kal_streq(const char* a, unsigned char la, const char* b, unsigned char lb) {
	return la == lb && memcmp(a, b, la) == 0;
}

static char* kal_skip_byte(char* p) {
	return p + 1;
}

static char* kal_skip_bytes(char* p, unsigned char n) {
	return p + n;
}

static char* kal_skip_checksum(char* p) {
	return p + 4;
}

// Consumes a variable-length integer whose continuation bit is the high bit
// of each byte.
static char* kal_skip_int(char* p) {
	while (*p & 0x80) {
		p++;
	}
	return p + 1;
}

static void* kal_builtin_addr(int i) {
	switch (i) {
	case 0: return (void*)&kal_putchard;
	case 1: return (void*)&kal_my_strcmp;
	case 2: return (void*)&kal_streq;
	case 3: return (void*)&kal_skip_byte;
	case 4: return (void*)&kal_skip_bytes;
	case 5: return (void*)&kal_skip_checksum;
	case 6: return (void*)&kal_skip_int;
	}
	return 0;
}
*/
import "C"

import "unsafe"

// builtinNames lists the runtime helpers exposed to compiled code via
// extern declarations, in the order kal_builtin_addr expects.
var builtinNames = []string{
	"putchard",
	"my_strcmp",
	"streq",
	"skip_byte",
	"skip_bytes",
	"skip_checksum",
	"skip_int",
}

func builtinAddr(i int) unsafe.Pointer {
	return C.kal_builtin_addr(C.int(i))
}
