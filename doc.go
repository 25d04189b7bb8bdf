/*
Package psf decodes PSF parameter containers (the PARAM.SFO files found on
PS3/PSP/Vita media) and renders their entries as text.

The decoder reads strictly forward; the offsets stored in the header and in
the entries are informational and only checked in strict mode.

# Data Structure Documentation

# Container

All fields are little-endian.

	Container layout:
	+--------+-------------+-----------+---------------+-------------+
	| header | entry table | key table | padding (0-3) | value table |
	+--------+-------------+-----------+---------------+-------------+

	Header (20 bytes):
	+---------------------+-------------------+----------------------+----------------------+-------------------+
	| magic "\0PSF" (4 b) | version (4 bytes) | keys start (4 bytes) | data start (4 bytes) | count (4 bytes)   |
	+---------------------+-------------------+----------------------+----------------------+-------------------+

	Entry (16 bytes, repeated count times):
	+-----------------------+-------------------+--------------------+------------------------+-----------------------+
	| key offset (2 bytes)  | format (2 bytes)  | data len (4 bytes) | data max len (4 bytes) | data offset (4 bytes) |
	+-----------------------+-------------------+--------------------+------------------------+-----------------------+

# Keys

The key table holds count NUL-terminated strings back-to-back, followed by
zero padding up to the next 4-byte boundary.

	+--------------+-----+--------------+-----+---------------+
	| key 1 (text) | NUL |     ...      | NUL | padding (0-3) |
	+--------------+-----+--------------+-----+---------------+

# Values

Each value occupies data max len bytes, of which only the first data len
bytes are meaningful.

	+--------------------------+-----------------------------------------+-------+
	| value 1 (data len bytes) | padding (data max len - data len bytes) |  ...  |
	+--------------------------+-----------------------------------------+-------+

# Formats

	0x0404  integer   little-endian int32, rendered in decimal
	0x0204  utf8      NUL-terminated text, rendered verbatim
	0x0004  special   opaque bytes, rendered as a hex dump of up to 16 bytes
*/
package psf
