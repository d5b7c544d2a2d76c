package mcpserver

// NoteFormatURI is the resource URI of NoteFormatContract.
const NoteFormatURI = "tirelire://note-format"

// NoteFormatContract describes the stored note body so LLM clients can build
// content the note endpoints and tools accept.
const NoteFormatContract = `# Tirelire Note Format

A note body is a JSON envelope serialized into the note's content field.

` + "```" + `json
{
  "version": 2,
  "html": "<h1>Trip to Lyon</h1><p>Receipts below #travel</p>",
  "attachments": [
    {"id": "7b1c...", "name": "ticket.pdf", "type": "application/pdf", "size": 48213,
     "url": "/uploads/notes/12/7b1c....pdf", "storagePath": "notes/12/7b1c....pdf"}
  ]
}
` + "```" + `

## Rules

1. **html** is the rich text body. The first <h1>, or else the first line, becomes the title.
2. **Tags** are words starting with # in the text, matched case-insensitively.
3. **Attachments** are kept in step with blob storage on every save:
   - an entry with "dataUrl" (base64) is written under the note and replaced by a stored file;
   - an entry with "isTemp": true and a "temp/..." storagePath, as returned by POST /api/uploads, is moved under the note;
   - an entry with a storagePath under the note is kept as is;
   - an entry with only an id keeps the stored attachment with that id;
   - a stored attachment missing from the list is deleted.
4. Plain text or bare HTML is accepted and upgraded to this envelope on the next save.
5. Ids are stable across saves. Do not invent storage paths.
`
