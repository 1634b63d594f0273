package telegram

const (
	welcomeText = "🤖 *File Processing Bot*\n\n" +
		"Send me:\n" +
		"• A direct file link (mp4, zip, pdf …)\n" +
		"• Multiple links (one per line)\n" +
		"• A `.txt` file containing download URLs\n\n" +
		"I'll download them and send the files back!\n\n" +
		"⚠️ Max file size: 50 MB per file\n" +
		"📦 Multiple files are zipped automatically"

	noURLsInMessage   = "❌ No valid URLs found in your message.\nSend a direct download link or upload a .txt file."
	notATextFile      = "❌ Please upload a `.txt` file containing URLs."
	readingUpload     = "📄 Reading uploaded file…"
	noURLsInUpload    = "❌ No valid URLs found in the uploaded file."
	foundURLsFormat   = "🔗 Found %d URL(s). Starting download…"
	foundUploadFormat = "🔗 Found %d URL(s). Starting downloads…"
	readErrorPrefix   = "❌ Error reading file: "

	startCommandDescription = "Show usage instructions"
)
