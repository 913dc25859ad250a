package bot

import (
	"fmt"
	"strings"

	"github.com/speednet-khulna/messenger-bot/internal/knowledge"
	"github.com/speednet-khulna/messenger-bot/internal/messenger"
)

// DefaultPackagesText is sent for package questions when the page's
// knowledge base has no packages section.
const DefaultPackagesText = "📦 আমাদের ইন্টারনেট প্যাকেজসমূহ:\n" +
	"• ১০ এমবিপিএস - ৫০০ টাকা/মাস\n" +
	"• ২০ এমবিপিএস - ৮০০ টাকা/মাস\n" +
	"• ৩০ এমবিপিএস - ১০০০ টাকা/মাস\n" +
	"• ৫০ এমবিপিএস - ১৫০০ টাকা/মাস\n\n" +
	"সংযোগ নিতে আপনার ঠিকানা ও মোবাইল নম্বর পাঠান।"

const nonTextText = "দুঃখিত, আমি শুধু লেখা মেসেজ বুঝতে পারি। অনুগ্রহ করে আপনার প্রশ্নটি লিখে পাঠান।"

// WelcomeQuickReplies are offered under the greeting. Their payloads are fed
// back through the router as message text.
var WelcomeQuickReplies = []messenger.QuickReply{
	{Title: "📦 প্যাকেজ ও দাম", Payload: "প্যাকেজ ও দাম"},
	{Title: "💳 বিল পেমেন্ট", Payload: "বিল পেমেন্ট"},
	{Title: "🛠 ইন্টারনেট সমস্যা", Payload: "ইন্টারনেট সমস্যা"},
}

func welcomeText(botName, pageName string) string {
	return fmt.Sprintf("আসসালামু আলাইকুম! %s-এ আপনাকে স্বাগতম। আমি %s, আপনাকে কীভাবে সাহায্য করতে পারি?", pageName, botName)
}

// FallbackText is the apology sent whenever no real answer can be produced.
func FallbackText(hotline string) string {
	return fmt.Sprintf("দুঃখিত, এই মুহূর্তে আপনার প্রশ্নের উত্তর দিতে পারছি না। অনুগ্রহ করে আমাদের হটলাইনে যোগাযোগ করুন: %s", hotline)
}

// NoInfoText stands in for the knowledge context when no section matches.
func NoInfoText(hotline string) string {
	return fmt.Sprintf("এই বিষয়ে নির্দিষ্ট কোনো তথ্য নেই। গ্রাহককে অফিসে বা হটলাইনে (%s) যোগাযোগ করতে বলো।", hotline)
}

func externalIDConfirmText(id string) string {
	return fmt.Sprintf("ধন্যবাদ! আপনার আইডি (%s) সংরক্ষণ করা হয়েছে। এখন আপনার প্রশ্নটি লিখুন।", id)
}

// packagesText renders the packages section without its heading line.
func packagesText(base *knowledge.Base) string {
	section, ok := base.Section("packages")
	if !ok {
		return DefaultPackagesText
	}
	lines := strings.SplitN(section, "\n", 2)
	if strings.HasPrefix(lines[0], knowledge.HeadingMarker) {
		if len(lines) == 1 {
			return DefaultPackagesText
		}
		section = strings.TrimSpace(lines[1])
	}
	if section == "" {
		return DefaultPackagesText
	}
	return section
}
