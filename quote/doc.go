/*
Package quote implements the mention-to-quote pipeline: deciding which
note a mention is asking about, rendering that note as an image, and
answering the mention with a threaded reply carrying the image URL.

The Engine is the entrypoint; callers feed it every candidate mention
and its own dedup state makes redundant deliveries no-ops. Collaborators
(relay I/O, rendering, state) are injected as narrow interfaces so the
pipeline runs against fakes in tests.
*/
package quote
