// Package render produces hosted quote images. The note-to-quote web
// app does the actual drawing; this package drives it in a headless
// browser, captures the canvas, and uploads the PNG to imgBB.
package render
